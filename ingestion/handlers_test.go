package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/index"
	"github.com/poiesic/memvault/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runPlan invokes the registered handlers in plan order, advancing the
// state between steps like the orchestrator would.
func runPlan(t *testing.T, r *pipeline.Registry, st *core.PipelineState) {
	t.Helper()
	for st.NextStep() != "" {
		h, ok := r.Lookup(st.NextStep())
		require.True(t, ok, "no handler for %s", st.NextStep())
		result, err := h.Invoke(context.Background(), st)
		require.NoError(t, err)
		require.Equal(t, pipeline.ResultAdvance, result.Kind, "step %s", st.NextStep())
		st.AdvanceStep()
	}
}

func newTestRegistry(t *testing.T, store artifact.Store, idx index.Index) *pipeline.Registry {
	t.Helper()
	r := pipeline.NewRegistry()
	require.NoError(t, RegisterDefaults(r, store, mock.NewEmbedder(), idx, Chunker{Size: 120, Overlap: 20, MinLength: 10}))
	return r
}

func TestPipelineEndToEnd(t *testing.T) {
	store := artifact.NewMemoryStore()
	idx := NewMemoryIndexForTest(t)
	r := newTestRegistry(t, store, idx)

	text := strings.TrimSpace(strings.Repeat("Gophers build reliable services. ", 15))
	st := seedState(t, store, "note.txt", "text/plain", []byte(text))
	st.Tags = core.TagCollection{"topic": {"gophers"}}

	runPlan(t, r, st)

	f := st.Files[0]
	partitions := f.GeneratedBy(StepPartitionText)
	require.NotEmpty(t, partitions)
	assert.Len(t, f.GeneratedBy(StepGenerateEmbeddings), len(partitions))

	// Every partition became a chunk record carrying the document's tags
	// plus the automatic ones.
	query := mock.DeterministicVector(readArtifact(t, store, partitions[0].Key))
	results, err := idx.Search(context.Background(), "notes", query, nil, -1, -1)
	require.NoError(t, err)
	require.Len(t, results, len(partitions))

	best := results[0]
	assert.InDelta(t, 1.0, float64(best.Score), 1e-4)
	assert.Equal(t, "doc-1", best.Chunk.DocumentID)
	assert.Equal(t, "f0", best.Chunk.FileID)
	assert.True(t, best.Chunk.Tags.HasValue("topic", "gophers"))
	assert.True(t, best.Chunk.Tags.HasValue(core.TagDocumentID, "doc-1"))
	assert.True(t, best.Chunk.Tags.HasValue(core.TagFileID, "f0"))
	assert.True(t, best.Chunk.Tags.HasKey(core.TagFilePart))
}

func TestPipelineReingestReplacesChunks(t *testing.T) {
	store := artifact.NewMemoryStore()
	idx := NewMemoryIndexForTest(t)
	r := newTestRegistry(t, store, idx)

	long := strings.TrimSpace(strings.Repeat("The first revision had lots of text. ", 20))
	st := seedState(t, store, "note.txt", "text/plain", []byte(long))
	runPlan(t, r, st)

	firstCount := countChunks(t, idx, "notes")
	require.Greater(t, firstCount, 1)

	// Re-ingest the same document id with much shorter content.
	st2 := seedState(t, store, "note.txt", "text/plain", []byte("Second revision, one chunk."))
	runPlan(t, r, st2)

	assert.Equal(t, 1, countChunks(t, idx, "notes"))
}

func TestPipelineEmptyFileYieldsNoChunks(t *testing.T) {
	store := artifact.NewMemoryStore()
	idx := NewMemoryIndexForTest(t)
	r := newTestRegistry(t, store, idx)

	st := seedState(t, store, "empty.txt", "text/plain", []byte("   \n  "))
	runPlan(t, r, st)

	assert.Empty(t, st.Files[0].GeneratedBy(StepPartitionText))
	assert.Zero(t, countChunks(t, idx, "notes"))
}

func TestPartitionTextMissingUpstreamIsFatal(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewPartitionTextHandler(store, DefaultChunker())
	require.NoError(t, err)

	st := seedState(t, store, "note.txt", "text/plain", []byte("hello"))
	result, err := h.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ResultFatal, result.Kind)
	assert.ErrorIs(t, result.Reason, ErrMissingUpstream)
}

func TestGenerateEmbeddingsRetriesOnEmbedderError(t *testing.T) {
	store := artifact.NewMemoryStore()
	idx := NewMemoryIndexForTest(t)

	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, context.DeadlineExceeded
	}
	h, err := NewGenerateEmbeddingsHandler(store, embedder)
	require.NoError(t, err)

	r := pipeline.NewRegistry()
	require.NoError(t, RegisterDefaults(r, store, mock.NewEmbedder(), idx, DefaultChunker()))

	st := seedState(t, store, "note.txt", "text/plain", []byte("Some text to embed."))
	extract, _ := r.Lookup(StepExtractText)
	_, err = extract.Invoke(context.Background(), st)
	require.NoError(t, err)
	partition, _ := r.Lookup(StepPartitionText)
	_, err = partition.Invoke(context.Background(), st)
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), st)
	assert.Error(t, err)
}

func NewMemoryIndexForTest(t *testing.T) index.Index {
	t.Helper()
	idx := index.NewMemoryIndex()
	t.Cleanup(func() { idx.Close() })
	return idx
}

func readArtifact(t *testing.T, store artifact.Store, key string) string {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return string(data)
}

func countChunks(t *testing.T, idx index.Index, name string) int {
	t.Helper()
	results, err := idx.Search(context.Background(), name, mock.DeterministicVector("anything"), nil, -1, -1)
	require.NoError(t, err)
	return len(results)
}
