package pipeline

import (
	"context"
	"time"

	"github.com/poiesic/memvault/core"
)

// ResultKind classifies a handler invocation outcome.
type ResultKind int

const (
	// ResultAdvance moves the document to its next step.
	ResultAdvance ResultKind = iota + 1
	// ResultRetry re-delivers the same step after a delay.
	ResultRetry
	// ResultFatal fails the document permanently.
	ResultFatal
)

// Result is what a handler reports back to the orchestrator.
type Result struct {
	Kind ResultKind
	// RetryAfter is the requested re-delivery delay for ResultRetry.
	// Zero means "use the orchestrator's backoff schedule".
	RetryAfter time.Duration
	// Reason carries the error behind a Retry or Fatal result.
	Reason error
}

// Advance reports successful step completion.
func Advance() Result {
	return Result{Kind: ResultAdvance}
}

// Retry reports a transient failure; the step will be re-delivered.
func Retry(after time.Duration, reason error) Result {
	return Result{Kind: ResultRetry, RetryAfter: after, Reason: reason}
}

// Fatal reports a permanent failure; the document transitions to failed.
func Fatal(reason error) Result {
	return Result{Kind: ResultFatal, Reason: reason}
}

// Handler implements one named pipeline step.
//
// Invoke receives the document's current state and may read and write the
// artifact store, append generated files and tags to the state, and must
// not remove completed steps. A non-nil error is an unexpected failure and
// is treated like Retry with the default delay.
//
// Handlers must be idempotent: re-invocation on the same state after a
// crash must either detect prior work through its deterministic artifact
// keys or safely overwrite it.
type Handler interface {
	// Name is the step name the handler registers under.
	Name() string

	// SoftDeadline is the per-invocation time budget. The orchestrator
	// cancels the invocation context when it elapses and treats the
	// overrun as a retry. It must stay below the queue visibility timeout.
	SoftDeadline() time.Duration

	// Invoke executes the step against the given state.
	Invoke(ctx context.Context, state *core.PipelineState) (Result, error)
}
