package search

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T, texts map[string]string) index.Index {
	t.Helper()
	idx := index.NewMemoryIndex()
	t.Cleanup(func() { idx.Close() })

	embedder := mock.NewEmbedder()
	var chunks []*core.Chunk
	for docID, text := range texts {
		vec, err := embedder.EmbedText(context.Background(), text)
		require.NoError(t, err)
		chunks = append(chunks, &core.Chunk{
			ID:         core.ChunkID("notes", docID, "f0", 0),
			DocumentID: docID,
			FileID:     "f0",
			Part:       0,
			Text:       text,
			Vector:     vec,
			Tags:       core.TagCollection{core.TagDocumentID: {docID}},
		})
	}
	require.NoError(t, idx.Upsert(context.Background(), "notes", chunks))
	return idx
}

func TestSearchFindsExactText(t *testing.T) {
	idx := seedIndex(t, map[string]string{
		"d1": "the standup is at nine",
		"d2": "lunch is at noon",
	})
	s, err := NewSearcher(idx, mock.NewEmbedder())
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "notes", "the standup is at nine", nil, 0.99, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].Chunk.DocumentID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)
}

func TestSearchEmptyQuerySkipsEmbedder(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "something"})
	embedder := mock.NewEmbedder()
	s, err := NewSearcher(idx, embedder)
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "notes", "   ", nil, -1, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestSearchZeroLimitIsEmpty(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "something"})
	embedder := mock.NewEmbedder()
	s, err := NewSearcher(idx, embedder)
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "notes", "something", nil, -1, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestSearchAppliesFilters(t *testing.T) {
	idx := seedIndex(t, map[string]string{
		"d1": "project kickoff notes",
		"d2": "project kickoff notes ", // same content, different doc
	})
	s, err := NewSearcher(idx, mock.NewEmbedder())
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "notes", "project kickoff notes",
		[]core.MemoryFilter{{core.TagDocumentID: {"d2"}}}, -1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].Chunk.DocumentID)
}

func TestSearchPropagatesEmbedderError(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "something"})
	embedder := mock.NewEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("model server down")
	}
	s, err := NewSearcher(idx, embedder)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "notes", "anything", nil, -1, 10)
	assert.Error(t, err)
}

func TestAskReturnsAnswerWithCitations(t *testing.T) {
	idx := seedIndex(t, map[string]string{
		"d1": "the deploy freeze starts friday",
	})
	answerer := mock.NewAnswerGenerator()
	s, err := NewSearcher(idx, mock.NewEmbedder(), WithAnswerGenerator(answerer))
	require.NoError(t, err)

	answer, err := s.Ask(context.Background(), "notes", "the deploy freeze starts friday", nil, 0.9, 5)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.NotEmpty(t, answer.Text)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "d1", answer.Citations[0].DocumentID)
	assert.Equal(t, "f0", answer.Citations[0].FileID)

	// The model saw the retrieved chunk as a passage.
	require.Len(t, answerer.LastPassages, 1)
	assert.Contains(t, answerer.LastPassages[0].Text, "deploy freeze")
}

func TestAskNoResultsReturnsCannedAnswer(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "unrelated content"})
	answerer := mock.NewAnswerGenerator()
	s, err := NewSearcher(idx, mock.NewEmbedder(), WithAnswerGenerator(answerer))
	require.NoError(t, err)

	// minRelevance 1.01 is unreachable, so retrieval comes back empty.
	answer, err := s.Ask(context.Background(), "notes", "miss", nil, 1.01, 5)
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, answer.Text)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, answerer.CallCount())
}

func TestAskWithoutAnswererFails(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "x"})
	s, err := NewSearcher(idx, mock.NewEmbedder())
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "notes", "q", nil, -1, 5)
	assert.ErrorIs(t, err, ErrAnswererRequired)
}

type recordingMonitor struct {
	started  bool
	embedded bool
	finished bool
	hits     int
}

func (m *recordingMonitor) Start(_, _ string)               { m.started = true }
func (m *recordingMonitor) AfterQueryEmbedding(_ []float32) { m.embedded = true }
func (m *recordingMonitor) Finish(results []core.ScoredChunk) {
	m.finished = true
	m.hits = len(results)
}

func TestSearchWithMonitor(t *testing.T) {
	idx := seedIndex(t, map[string]string{"d1": "observed search"})
	s, err := NewSearcher(idx, mock.NewEmbedder())
	require.NoError(t, err)

	var m recordingMonitor
	results, err := s.SearchWithMonitor(context.Background(), "notes", "observed search", nil, -1, 10, &m)
	require.NoError(t, err)
	assert.True(t, m.started)
	assert.True(t, m.embedded)
	assert.True(t, m.finished)
	assert.Equal(t, len(results), m.hits)
}
