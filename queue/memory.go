package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a single-process queue with full lease semantics. It backs
// tests and embedded single-binary deployments.
type MemoryQueue struct {
	mu     sync.Mutex
	opts   options
	order  []string           // document keys with queued work, FIFO across documents
	perDoc map[string][]*item // per-document FIFO, head is next
	leases map[string]leaseInfo
	leased map[string]string // document key -> lease token
	dead   []Message
	closed bool
	now    func() time.Time // overridable in tests
}

type item struct {
	msg       Message
	visibleAt time.Time
}

type leaseInfo struct {
	docKey   string
	deadline time.Time
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts ...Option) *MemoryQueue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryQueue{
		opts:   o,
		perDoc: map[string][]*item{},
		leases: map[string]leaseInfo{},
		leased: map[string]string{},
		now:    time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	dk := msg.DocumentKey()
	if _, ok := q.perDoc[dk]; !ok {
		q.order = append(q.order, dk)
	}
	q.perDoc[dk] = append(q.perDoc[dk], &item{msg: msg, visibleAt: q.now()})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	now := q.now()
	q.reapExpiredLeases(now)

	for _, dk := range q.order {
		if _, busy := q.leased[dk]; busy {
			continue
		}
		items := q.perDoc[dk]
		if len(items) == 0 || items[0].visibleAt.After(now) {
			continue
		}
		token := uuid.NewString()
		q.leases[token] = leaseInfo{docKey: dk, deadline: now.Add(q.opts.visibility)}
		q.leased[dk] = token
		return &Delivery{Message: items[0].msg, Lease: token}, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, lease string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	li, ok := q.leases[lease]
	if !ok {
		return ErrUnknownLease
	}
	q.popHead(li.docKey)
	q.releaseLease(lease, li.docKey)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, lease string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	li, ok := q.leases[lease]
	if !ok {
		return ErrUnknownLease
	}
	items := q.perDoc[li.docKey]
	if len(items) > 0 {
		head := items[0]
		head.msg.Attempt++
		if head.msg.Attempt > q.opts.maxAttempts {
			q.dead = append(q.dead, head.msg)
			q.popHead(li.docKey)
		} else {
			head.visibleAt = q.now().Add(delay)
		}
	}
	q.releaseLease(lease, li.docKey)
	return nil
}

func (q *MemoryQueue) DeadLetters(ctx context.Context) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.dead), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len returns the number of queued (not dead-lettered) messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, items := range q.perDoc {
		n += len(items)
	}
	return n
}

// reapExpiredLeases returns expired claims to the visible state. The
// attempt count stays unchanged: expiry is not an attempt.
func (q *MemoryQueue) reapExpiredLeases(now time.Time) {
	for token, li := range q.leases {
		if now.After(li.deadline) {
			q.releaseLease(token, li.docKey)
		}
	}
}

func (q *MemoryQueue) popHead(dk string) {
	items := q.perDoc[dk]
	if len(items) <= 1 {
		delete(q.perDoc, dk)
		if i := slices.Index(q.order, dk); i >= 0 {
			q.order = slices.Delete(q.order, i, i+1)
		}
		return
	}
	q.perDoc[dk] = items[1:]
}

func (q *MemoryQueue) releaseLease(token, dk string) {
	delete(q.leases, token)
	if q.leased[dk] == token {
		delete(q.leased, dk)
	}
}
