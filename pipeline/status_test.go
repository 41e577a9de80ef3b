package pipeline

import (
	"context"
	"testing"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReporterProjectsState(t *testing.T) {
	states := NewArtifactStateStore(artifact.NewMemoryStore())
	r := NewStatusReporter(states, nil)

	st := core.NewPipelineState("notes", "doc-1", nil, []string{"extract_text", "partition_text"})
	st.Status = core.StatusProcessing
	st.AdvanceStep()
	require.NoError(t, states.Save(context.Background(), st))

	ds, err := r.StatusOf(context.Background(), "notes", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "notes", ds.Index)
	assert.Equal(t, "doc-1", ds.DocumentID)
	assert.Equal(t, core.StatusProcessing, ds.Status)
	assert.False(t, ds.Ready)
	require.Len(t, ds.Completed, 1)
	assert.Equal(t, "extract_text", ds.Completed[0].Name)
	assert.False(t, ds.Completed[0].CompletedAt.IsZero())
	assert.Equal(t, []string{"partition_text"}, ds.Remaining)
	assert.Nil(t, ds.FailureReason)
}

func TestStatusReporterUnknownDocument(t *testing.T) {
	r := NewStatusReporter(NewArtifactStateStore(artifact.NewMemoryStore()), nil)
	_, err := r.StatusOf(context.Background(), "notes", "ghost")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestStatusReporterList(t *testing.T) {
	states := NewArtifactStateStore(artifact.NewMemoryStore())
	r := NewStatusReporter(states, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, states.Save(context.Background(), core.NewPipelineState("notes", id, nil, nil)))
	}
	require.NoError(t, states.Save(context.Background(), core.NewPipelineState("other", "d", nil, nil)))

	out, err := r.List(context.Background(), "notes")
	require.NoError(t, err)
	require.Len(t, out, 3)
	seen := map[string]bool{}
	for _, ds := range out {
		assert.Equal(t, "notes", ds.Index)
		seen[ds.DocumentID] = true
	}
	assert.True(t, seen["a"] && seen["b"] && seen["c"])
}

func TestStatusReporterDeadLetters(t *testing.T) {
	q := queue.NewMemoryQueue(queue.WithMaxAttempts(1))
	states := NewArtifactStateStore(artifact.NewMemoryStore())
	r := NewStatusReporter(states, q)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queue.Message{Index: "notes", DocumentID: "doc-1"}))
	for i := 0; i < 2; i++ {
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, d)
		require.NoError(t, q.Nack(ctx, d.Lease, 0))
	}

	dead, err := r.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "doc-1", dead[0].DocumentID)
}
