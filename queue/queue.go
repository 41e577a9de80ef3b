package queue

import (
	"context"
	"time"
)

// Defaults shared by all backends.
const (
	// DefaultVisibility is how long a dequeued message stays invisible
	// before an un-acked lease expires. It must exceed the longest handler
	// soft deadline plus a safety margin.
	DefaultVisibility = 2 * time.Minute

	// DefaultMaxAttempts is the failure count past which a message is
	// dead-lettered.
	DefaultMaxAttempts = 20
)

// Message identifies one unit of pipeline work: "run the next step of this
// document". Attempt counts explicit failures (Nack), not lease expiries.
type Message struct {
	Index      string
	DocumentID string
	Attempt    int
}

// DocumentKey returns the per-document FIFO key.
func (m Message) DocumentKey() string {
	return m.Index + "/" + m.DocumentID
}

// Delivery is a dequeued message together with its lease token. The lease
// must be settled with Ack or Nack before the visibility timeout, or the
// message returns to the visible state.
type Delivery struct {
	Message Message
	Lease   string
}

// Queue is the capability interface for work queue backends.
// Implementations must be thread-safe.
type Queue interface {
	// Enqueue appends a message to its document's FIFO.
	Enqueue(ctx context.Context, msg Message) error

	// Dequeue claims the next visible message and returns it with a lease
	// token, or (nil, nil) when no message is currently available.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Ack settles a lease and permanently removes its message.
	// Returns ErrUnknownLease for expired or unknown tokens.
	Ack(ctx context.Context, lease string) error

	// Nack reports a failed processing attempt. The message's attempt count
	// increments and the message becomes visible again after delay, or
	// moves to the dead-letter area once the count exceeds the maximum.
	Nack(ctx context.Context, lease string, delay time.Duration) error

	// DeadLetters returns the messages that exhausted their attempts.
	DeadLetters(ctx context.Context) ([]Message, error)

	// Close releases backend resources.
	Close() error
}

type options struct {
	visibility  time.Duration
	maxAttempts int
}

func defaultOptions() options {
	return options{
		visibility:  DefaultVisibility,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Option configures a queue backend.
type Option func(*options)

// WithVisibilityTimeout sets the lease duration for dequeued messages.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.visibility = d
		}
	}
}

// WithMaxAttempts sets the failure count past which messages dead-letter.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}
