package queue

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DiskQueue is a durable single-node queue backed by a spool directory.
// Every message is one file; claiming a message creates a companion .lease
// file with O_EXCL, which doubles as an advisory lock against other
// processes sharing the spool. Dead-lettered messages move to dead/.
type DiskQueue struct {
	dir    string
	opts   options
	seq    atomic.Uint64
	logger *slog.Logger
}

const (
	msgSuffix   = ".msg"
	leaseSuffix = ".lease"
	deadDirName = "dead"
)

var _ Queue = (*DiskQueue)(nil)

// NewDiskQueue opens (or creates) a spool directory.
func NewDiskQueue(dir string, opts ...Option) (*DiskQueue, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(filepath.Join(dir, deadDirName), 0o755); err != nil {
		return nil, err
	}
	return &DiskQueue{
		dir:    dir,
		opts:   o,
		logger: slog.Default().With("component", "disk-queue"),
	}, nil
}

// Message file layout: 8 bytes big-endian visible-at (unix nanos) followed
// by the binary envelope. File names sort lexicographically in enqueue
// order: <zero-padded nanos>-<seq>-<base64 doc key>.msg.
func (q *DiskQueue) Enqueue(ctx context.Context, msg Message) error {
	name := fmt.Sprintf("%020d-%06d-%s%s",
		time.Now().UnixNano(), q.seq.Add(1), encodeDocKey(msg.DocumentKey()), msgSuffix)
	return q.writeMessage(filepath.Join(q.dir, name), msg, time.Now())
}

func (q *DiskQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	names, err := q.listMessages()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	claimed := map[string]bool{} // doc keys already considered this scan

	for _, name := range names {
		dk := docKeyOf(name)
		if claimed[dk] {
			// Per-document FIFO: only the earliest message of a document
			// is ever a candidate.
			continue
		}
		claimed[dk] = true

		visibleAt, msg, err := q.readMessage(filepath.Join(q.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue // settled by a concurrent consumer
			}
			return nil, err
		}
		if visibleAt.After(now) {
			continue
		}
		lease, ok := q.tryLease(name, now)
		if !ok {
			continue
		}
		return &Delivery{Message: msg, Lease: lease}, nil
	}
	return nil, nil
}

func (q *DiskQueue) Ack(ctx context.Context, lease string) error {
	name, ok := q.verifyLease(lease)
	if !ok {
		return ErrUnknownLease
	}
	msgPath := filepath.Join(q.dir, name)
	if err := os.Remove(msgPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(msgPath + leaseSuffix)
	return nil
}

func (q *DiskQueue) Nack(ctx context.Context, lease string, delay time.Duration) error {
	name, ok := q.verifyLease(lease)
	if !ok {
		return ErrUnknownLease
	}
	msgPath := filepath.Join(q.dir, name)
	_, msg, err := q.readMessage(msgPath)
	if err != nil {
		return err
	}
	msg.Attempt++

	if msg.Attempt > q.opts.maxAttempts {
		deadPath := filepath.Join(q.dir, deadDirName, name)
		if err := q.writeMessage(deadPath, msg, time.Now()); err != nil {
			return err
		}
		q.logger.Warn("message dead-lettered",
			"index", msg.Index, "documentID", msg.DocumentID, "attempts", msg.Attempt)
		if err := os.Remove(msgPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else if err := q.writeMessage(msgPath, msg, time.Now().Add(delay)); err != nil {
		return err
	}
	return os.Remove(msgPath + leaseSuffix)
}

func (q *DiskQueue) DeadLetters(ctx context.Context) ([]Message, error) {
	entries, err := os.ReadDir(filepath.Join(q.dir, deadDirName))
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), msgSuffix) {
			continue
		}
		_, msg, err := q.readMessage(filepath.Join(q.dir, deadDirName, e.Name()))
		if err != nil {
			q.logger.Warn("skipping unreadable dead letter", "file", e.Name(), "err", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *DiskQueue) Close() error {
	return nil
}

func (q *DiskQueue) listMessages() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), msgSuffix) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// tryLease claims a message by creating its lease file exclusively. A stale
// lease whose deadline passed is broken in place; the attempt count is not
// touched by expiry. The lease file records a fresh random token, so a
// holder whose lease was broken can no longer settle the message. Returns
// the lease string handed to the consumer: <file name>:<token>.
func (q *DiskQueue) tryLease(name string, now time.Time) (string, bool) {
	leasePath := filepath.Join(q.dir, name+leaseSuffix)
	token := uuid.NewString()
	f, err := os.OpenFile(leasePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		fmt.Fprintf(f, "%d %s", now.Add(q.opts.visibility).UnixNano(), token)
		f.Close()
		return name + ":" + token, true
	}
	if !os.IsExist(err) {
		return "", false
	}
	deadline, _, err := q.readLease(leasePath)
	if err != nil {
		return "", false
	}
	if now.UnixNano() <= deadline {
		return "", false
	}
	// Stale lease from a crashed worker.
	if err := os.Remove(leasePath); err != nil {
		return "", false
	}
	return q.tryLease(name, now)
}

// verifyLease checks a consumer's lease string against the lease file on
// disk and returns the message file name it covers. A token minted for a
// lease that has since expired and been re-claimed no longer matches.
func (q *DiskQueue) verifyLease(lease string) (string, bool) {
	name, token, ok := strings.Cut(lease, ":")
	if !ok || token == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", false
	}
	_, current, err := q.readLease(filepath.Join(q.dir, name+leaseSuffix))
	if err != nil || current != token {
		return "", false
	}
	return name, true
}

func (q *DiskQueue) readLease(path string) (deadline int64, token string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	fmt.Sscanf(string(data), "%d %s", &deadline, &token)
	return deadline, token, nil
}

func (q *DiskQueue) writeMessage(path string, msg Message, visibleAt time.Time) error {
	env := MarshalMessage(msg)
	data := make([]byte, 8+len(env))
	binary.BigEndian.PutUint64(data, uint64(visibleAt.UnixNano()))
	copy(data[8:], env)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".spool-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (q *DiskQueue) readMessage(path string) (time.Time, Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, Message{}, err
	}
	if len(data) < 8 {
		return time.Time{}, Message{}, fmt.Errorf("%w: truncated file %s", ErrBadEnvelope, path)
	}
	visibleAt := time.Unix(0, int64(binary.BigEndian.Uint64(data)))
	msg, err := UnmarshalMessage(data[8:])
	return visibleAt, msg, err
}

func encodeDocKey(dk string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(dk))
}

func docKeyOf(name string) string {
	parts := strings.SplitN(strings.TrimSuffix(name, msgSuffix), "-", 3)
	if len(parts) != 3 {
		return name
	}
	return parts[2]
}
