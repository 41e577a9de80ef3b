package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandler is a configurable test handler.
type stubHandler struct {
	name     string
	deadline time.Duration
	fn       func(ctx context.Context, st *core.PipelineState) (Result, error)
	calls    int
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) SoftDeadline() time.Duration {
	if h.deadline > 0 {
		return h.deadline
	}
	return time.Minute
}

func (h *stubHandler) Invoke(ctx context.Context, st *core.PipelineState) (Result, error) {
	h.calls++
	if h.fn == nil {
		return Advance(), nil
	}
	return h.fn(ctx, st)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	h := &stubHandler{name: "extract_text"}
	require.NoError(t, r.Register(h))

	got, ok := r.Lookup("extract_text")
	assert.True(t, ok)
	assert.Same(t, Handler(h), got)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubHandler{name: "extract_text"}))
	assert.ErrorIs(t, r.Register(&stubHandler{name: "extract_text"}), ErrDuplicateStep)
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubHandler{name: "extract_text"}))
	require.NoError(t, r.Register(&stubHandler{name: "partition_text"}))

	assert.NoError(t, r.Validate([]string{"extract_text", "partition_text"}))
	assert.NoError(t, r.Validate(nil))
	assert.ErrorIs(t, r.Validate([]string{"extract_text", "summarize"}), ErrUnknownStep)
}

func TestRegistrySteps(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubHandler{name: "partition_text"}))
	require.NoError(t, r.Register(&stubHandler{name: "extract_text"}))
	assert.Equal(t, []string{"extract_text", "partition_text"}, r.Steps())
}
