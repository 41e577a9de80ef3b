package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/queue"
)

const (
	defaultRetryDelay   = 5 * time.Second
	defaultSoftDeadline = time.Minute
	idleWaitMin         = 100 * time.Millisecond
	idleWaitMax         = 2 * time.Second
)

// Orchestrator drives documents through their pipelines. It runs a set of
// worker loops on a shared pool; each loop claims one queue message at a
// time, executes the document's next step and persists the result.
type Orchestrator struct {
	queue       queue.Queue
	states      StateStore
	registry    *Registry
	pool        *ants.Pool
	workers     int
	backoff     Backoff
	maxAttempts int
	logger      *slog.Logger
	wg          sync.WaitGroup

	// Stats counters, updated atomically by workers.
	dispatched atomic.Int64
	advanced   atomic.Int64
	retried    atomic.Int64
	failed     atomic.Int64
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Dispatched int64
	Advanced   int64
	Retried    int64
	Failed     int64
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkers sets the number of concurrent worker loops.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBackoff overrides the retry backoff schedule.
func WithBackoff(b Backoff) OrchestratorOption {
	return func(o *Orchestrator) {
		o.backoff = b
	}
}

// WithMaxAttempts sets the per-message attempt budget. It should match the
// queue's own dead-letter threshold.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithOrchestratorLogger sets a custom logger.
// Default is slog.Default().
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator over the given queue, state store
// and handler registry.
func NewOrchestrator(q queue.Queue, states StateStore, registry *Registry, opts ...OrchestratorOption) (*Orchestrator, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}
	if states == nil {
		return nil, ErrStateStoreRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	o := &Orchestrator{
		queue:       q,
		states:      states,
		registry:    registry,
		workers:     workers,
		backoff:     DefaultBackoff(),
		maxAttempts: queue.DefaultMaxAttempts,
		logger:      slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, err
	}
	o.pool = pool
	return o, nil
}

// Start launches the worker loops. They run until ctx is cancelled; a
// worker holding a lease finishes its current handler invocation first.
func (o *Orchestrator) Start(ctx context.Context) error {
	for i := 0; i < o.workers; i++ {
		id := i
		o.wg.Add(1)
		err := o.pool.Submit(func() {
			defer o.wg.Done()
			o.runWorker(ctx, id)
		})
		if err != nil {
			o.wg.Done()
			return err
		}
	}
	return nil
}

// Wait blocks until every worker loop has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Release waits for the workers and frees the pool. The orchestrator must
// not be started again afterwards.
func (o *Orchestrator) Release() {
	o.wg.Wait()
	o.pool.Release()
}

// Stats returns a snapshot of the processing counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Dispatched: o.dispatched.Load(),
		Advanced:   o.advanced.Load(),
		Retried:    o.retried.Load(),
		Failed:     o.failed.Load(),
	}
}

// Cancel marks a document cancelled. The worker that next picks up its
// message observes the status and acks without work.
func (o *Orchestrator) Cancel(ctx context.Context, index, documentID string) error {
	st, err := o.states.Load(ctx, index, documentID)
	if err != nil {
		return err
	}
	if st.Status.Terminal() {
		return nil
	}
	st.Status = core.StatusCancelled
	st.Touch()
	return o.states.Update(ctx, st)
}

func (o *Orchestrator) runWorker(ctx context.Context, id int) {
	logger := o.logger.With("worker", id)
	logger.Debug("worker started")
	idle := idleWaitMin

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		default:
		}

		if o.processOne(ctx, logger) {
			idle = idleWaitMin
			continue
		}

		// Nothing deliverable right now: sleep with bounded growth.
		timer := time.NewTimer(idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("worker stopped")
			return
		case <-timer.C:
		}
		if idle *= 2; idle > idleWaitMax {
			idle = idleWaitMax
		}
	}
}

// processOne handles a single queue message end to end. It returns false
// when the queue had nothing deliverable or an infrastructure error asked
// the worker to back off.
func (o *Orchestrator) processOne(ctx context.Context, logger *slog.Logger) bool {
	d, err := o.queue.Dequeue(ctx)
	if err != nil {
		logger.Warn("dequeue failed", "err", err)
		return false
	}
	if d == nil {
		return false
	}
	o.dispatched.Add(1)

	msg := d.Message
	logger = logger.With("index", msg.Index, "documentID", msg.DocumentID, "attempt", msg.Attempt)

	st, err := o.states.Load(ctx, msg.Index, msg.DocumentID)
	switch {
	case errors.Is(err, ErrStateNotFound):
		// Deleted since enqueue; nothing to do.
		logger.Debug("state missing, dropping message")
		o.ack(ctx, d, logger)
		return true
	case errors.Is(err, core.ErrCorruptState), errors.Is(err, core.ErrSchemaVersion):
		// Data integrity failure: refuse processing, require manual
		// intervention. Ack so the message does not hot-loop.
		logger.Error("refusing to process corrupt state", "err", err)
		o.ack(ctx, d, logger)
		return true
	case err != nil:
		// Infrastructure error: leave the lease to expire so the attempt
		// count stays unchanged, and back the worker off.
		logger.Warn("state load failed, releasing lease", "err", err)
		return false
	}

	if st.Status.Terminal() || st.NextStep() == "" {
		if !st.Status.Terminal() {
			st.Status = core.StatusComplete
			st.Touch()
			if err := o.states.Update(ctx, st); err != nil && !errors.Is(err, ErrStateGone) {
				logger.Warn("completion save failed, releasing lease", "err", err)
				return false
			}
		}
		o.ack(ctx, d, logger)
		return true
	}

	step := st.NextStep()
	logger = logger.With("step", step)

	st.Status = core.StatusProcessing
	st.Touch()
	switch o.update(ctx, d, st, logger) {
	case saveGone:
		return true
	case saveFailed:
		return false
	}

	handler, ok := o.registry.Lookup(step)
	if !ok {
		// Ingress validates plans, so this only happens when the process
		// was restarted with a different handler set.
		st.Fail(step, fmt.Sprintf("no handler registered for step %q", step))
		o.failed.Add(1)
		switch o.update(ctx, d, st, logger) {
		case saveGone:
			return true
		case saveFailed:
			return false
		}
		o.ack(ctx, d, logger)
		return true
	}

	result, invokeErr := o.invoke(ctx, handler, st)

	switch {
	case invokeErr == nil && result.Kind == ResultAdvance:
		st.AdvanceStep()
		if st.NextStep() == "" {
			st.Status = core.StatusComplete
			st.Touch()
		}
		switch o.update(ctx, d, st, logger) {
		case saveGone:
			return true
		case saveFailed:
			return false
		}
		if next := st.NextStep(); next != "" {
			err := o.queue.Enqueue(ctx, queue.Message{Index: msg.Index, DocumentID: msg.DocumentID})
			if err != nil {
				// State already records the advance; redelivery of this
				// message doubles as the lost continuation.
				logger.Warn("continuation enqueue failed, releasing lease", "err", err)
				return false
			}
		} else {
			logger.Info("document complete", "steps", len(st.StepsCompleted))
		}
		o.advanced.Add(1)
		o.ack(ctx, d, logger)

	case invokeErr == nil && result.Kind == ResultFatal:
		logger.Warn("step failed permanently", "reason", result.Reason)
		st.Fail(step, reasonString(result.Reason))
		o.failed.Add(1)
		switch o.update(ctx, d, st, logger) {
		case saveGone:
			return true
		case saveFailed:
			return false
		}
		o.ack(ctx, d, logger)

	default:
		reason := result.Reason
		if invokeErr != nil {
			reason = invokeErr
		}
		if msg.Attempt+1 > o.maxAttempts {
			// The nack below will dead-letter the message; record why the
			// document will never finish.
			logger.Error("attempt budget exhausted, poisoning document", "reason", reason)
			st.Fail(step, fmt.Sprintf("poisoned: %v", reason))
			o.failed.Add(1)
			switch o.update(ctx, d, st, logger) {
			case saveGone:
				return true
			case saveFailed:
				return false
			}
			o.nack(ctx, d, 0, logger)
			return true
		}

		// Transient: persist handler mutations without touching the step
		// lists and schedule a re-delivery.
		st.Touch()
		switch o.update(ctx, d, st, logger) {
		case saveGone:
			return true
		case saveFailed:
			return false
		}
		delay := result.RetryAfter
		if delay <= 0 {
			delay = o.backoff.Delay(msg.Attempt)
		}
		logger.Info("step will retry", "delay", delay, "reason", reason)
		o.retried.Add(1)
		o.nack(ctx, d, delay, logger)
	}
	return true
}

// invoke runs a handler under its soft deadline, converting panics into
// retryable errors so a misbehaving handler never kills a worker.
func (o *Orchestrator) invoke(ctx context.Context, h Handler, st *core.PipelineState) (result Result, err error) {
	deadline := h.SoftDeadline()
	if deadline <= 0 {
		deadline = defaultSoftDeadline
	}
	hctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Invoke(hctx, st)
}

// saveOutcome reports how a mid-flight state save ended.
type saveOutcome int

const (
	// saveOK: the state was persisted; processing continues.
	saveOK saveOutcome = iota
	// saveGone: the document was deleted while we held the lease. The
	// message has been acked and processing must stop.
	saveGone
	// saveFailed: the store could not persist the state. Nothing was
	// settled; the lease is left to expire so the message redelivers with
	// its attempt count unchanged.
	saveFailed
)

// update persists state mid-flight. Callers must not ack, nack or act on
// the in-memory state unless the outcome is saveOK: an unpersisted
// mutation followed by an ack would strand the document.
func (o *Orchestrator) update(ctx context.Context, d *queue.Delivery, st *core.PipelineState, logger *slog.Logger) saveOutcome {
	err := o.states.Update(ctx, st)
	if err == nil {
		return saveOK
	}
	if errors.Is(err, ErrStateGone) {
		logger.Info("document deleted during processing, aborting")
		o.ack(ctx, d, logger)
		return saveGone
	}
	logger.Warn("state save failed, releasing lease", "err", err)
	return saveFailed
}

func (o *Orchestrator) ack(ctx context.Context, d *queue.Delivery, logger *slog.Logger) {
	if err := o.queue.Ack(ctx, d.Lease); err != nil {
		logger.Warn("ack failed", "err", err)
	}
}

func (o *Orchestrator) nack(ctx context.Context, d *queue.Delivery, delay time.Duration, logger *slog.Logger) {
	if err := o.queue.Nack(ctx, d.Lease, delay); err != nil {
		logger.Warn("nack failed", "err", err)
	}
}

func reasonString(err error) string {
	if err == nil {
		return "unspecified failure"
	}
	return err.Error()
}
