// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/memvault/core"
)

// Key layout. Index names are canonical (lowercase, no colon), so the
// colon-delimited prefix scan cannot collide.
const chunkKeyPrefix = "chk"

// makeChunkKey generates the key for a chunk within an index.
// Format: chk:<index>:<8-byte big-endian id>
func makeChunkKey(index string, id core.ID) []byte {
	prefix := makeIndexPrefix(index)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian so iteration order matches numeric id order.
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeIndexPrefix generates the scan prefix for an index's chunks.
func makeIndexPrefix(index string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", chunkKeyPrefix, index))
}

// BadgerIndex stores chunks in a BadgerDB database, one JSON value per
// chunk. Search is a prefix scan over the index's records.
type BadgerIndex struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Index = (*BadgerIndex)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerIndex opens a BadgerDB-backed index at the specified path.
// Creates the directory if it doesn't exist. With inMemory set, path is
// ignored and nothing is persisted.
func OpenBadgerIndex(filePath string, inMemory bool) (*BadgerIndex, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerIndex{
		db:     db,
		logger: slog.Default(),
	}, nil
}

// withTx executes a function within a BadgerDB transaction. The
// transaction is discarded when fn returns an error.
func (b *BadgerIndex) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	if isWrite {
		return tx.Commit()
	}
	return nil
}

func (b *BadgerIndex) Upsert(ctx context.Context, index string, chunks []*core.Chunk) error {
	if b.db.IsClosed() {
		return ErrIndexClosed
	}
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return ErrMissingVector
		}
	}
	// Badger caps transaction size; WriteBatch handles splitting.
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := wb.Set(makeChunkKey(index, c.ID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerIndex) DeleteByFilter(ctx context.Context, index string, filters []core.MemoryFilter) (int, error) {
	if b.db.IsClosed() {
		return 0, ErrIndexClosed
	}
	if len(filters) == 0 {
		return 0, nil
	}

	var doomed [][]byte
	err := b.withTx(func(tx *badger.Txn) error {
		return b.scanChunks(tx, index, func(key []byte, c *core.Chunk) error {
			if core.MatchAnyFilter(filters, c.Tags) {
				doomed = append(doomed, append([]byte(nil), key...))
			}
			return nil
		})
	}, false)
	if err != nil {
		return 0, err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range doomed {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

func (b *BadgerIndex) Search(ctx context.Context, index string, vector []float32, filters []core.MemoryFilter, minScore float32, limit int) ([]core.ScoredChunk, error) {
	if b.db.IsClosed() {
		return nil, ErrIndexClosed
	}
	if limit == 0 {
		return nil, nil
	}

	var candidates []*core.Chunk
	err := b.withTx(func(tx *badger.Txn) error {
		return b.scanChunks(tx, index, func(_ []byte, c *core.Chunk) error {
			candidates = append(candidates, c)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return rankChunks(candidates, vector, filters, minScore, limit), nil
}

func (b *BadgerIndex) ListIndexes(ctx context.Context) ([]string, error) {
	if b.db.IsClosed() {
		return nil, ErrIndexClosed
	}
	seen := map[string]bool{}
	err := b.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkKeyPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().Key())
			rest := strings.TrimPrefix(key, chunkKeyPrefix+":")
			if i := strings.IndexByte(rest, ':'); i > 0 {
				seen[rest[:i]] = true
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *BadgerIndex) DeleteIndex(ctx context.Context, index string) error {
	if b.db.IsClosed() {
		return ErrIndexClosed
	}
	return b.db.DropPrefix(makeIndexPrefix(index))
}

func (b *BadgerIndex) Close() error {
	return b.db.Close()
}

// scanChunks iterates every chunk stored for the index, decoding values.
func (b *BadgerIndex) scanChunks(tx *badger.Txn, index string, fn func(key []byte, c *core.Chunk) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeIndexPrefix(index)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var c core.Chunk
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, item.Key(), err)
		}
		if err := fn(item.Key(), &c); err != nil {
			return err
		}
	}
	return nil
}
