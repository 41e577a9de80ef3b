package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/index"
)

// NoAnswerText is returned by Ask when retrieval finds nothing relevant.
const NoAnswerText = "I found no relevant memories to answer that."

// Citation points an answer back at the chunk it was grounded on.
type Citation struct {
	DocumentID string  `json:"documentId"`
	FileID     string  `json:"fileId"`
	Part       int     `json:"part"`
	Score      float32 `json:"score"`
}

// Answer is the result of an Ask call.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Searcher provides semantic search and grounded question answering over
// the retrieval index.
type Searcher struct {
	index    index.Index
	embedder ai.Embedder
	answerer ai.AnswerGenerator
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithAnswerGenerator enables Ask. Without one, Search works and Ask
// returns ErrAnswererRequired.
func WithAnswerGenerator(answerer ai.AnswerGenerator) Option {
	return func(s *Searcher) error {
		s.answerer = answerer
		return nil
	}
}

// NewSearcher creates a new searcher over the index and embedder.
func NewSearcher(idx index.Index, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		index:    idx,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search returns up to limit chunks relevant to the query, best first.
// Chunks scoring below minRelevance are dropped; tag filters narrow the
// candidate set. An empty query returns no results without calling the
// embedding service. A negative limit means unbounded; zero returns
// nothing.
func (s *Searcher) Search(ctx context.Context, indexName, query string, filters []core.MemoryFilter, minRelevance float32, limit int) ([]core.ScoredChunk, error) {
	return s.SearchWithMonitor(ctx, indexName, query, filters, minRelevance, limit, nil)
}

// SearchWithMonitor is Search with stage callbacks for tracing.
func (s *Searcher) SearchWithMonitor(ctx context.Context, indexName, query string, filters []core.MemoryFilter, minRelevance float32, limit int, monitor SearchMonitor) ([]core.ScoredChunk, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(indexName, query)

	query = strings.TrimSpace(query)
	if query == "" || limit == 0 {
		monitor.Finish(nil)
		return nil, nil
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(vector)

	results, err := s.index.Search(ctx, indexName, vector, filters, minRelevance, limit)
	if err != nil {
		s.logger.Error("error querying index", "index", indexName, "err", err)
		return nil, err
	}

	s.logger.Debug("search complete", "index", indexName, "hits", len(results))
	monitor.Finish(results)
	return results, nil
}

// Ask retrieves the chunks most relevant to the question and asks the
// answer generator to respond grounded on them. When retrieval comes back
// empty the canned NoAnswerText is returned with no citations rather than
// letting the model speculate.
func (s *Searcher) Ask(ctx context.Context, indexName, question string, filters []core.MemoryFilter, minRelevance float32, limit int) (*Answer, error) {
	if s.answerer == nil {
		return nil, ErrAnswererRequired
	}

	results, err := s.Search(ctx, indexName, question, filters, minRelevance, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Text: NoAnswerText, Citations: []Citation{}}, nil
	}

	passages := make([]ai.Passage, 0, len(results))
	citations := make([]Citation, 0, len(results))
	for _, r := range results {
		passages = append(passages, ai.Passage{
			Source: fmt.Sprintf("document %s, file %s, part %d", r.Chunk.DocumentID, r.Chunk.FileID, r.Chunk.Part),
			Text:   r.Chunk.Text,
		})
		citations = append(citations, Citation{
			DocumentID: r.Chunk.DocumentID,
			FileID:     r.Chunk.FileID,
			Part:       r.Chunk.Part,
			Score:      r.Score,
		})
	}

	text, err := s.answerer.GenerateAnswer(ctx, question, passages)
	if err != nil {
		s.logger.Error("error generating answer", "err", err)
		return nil, err
	}

	return &Answer{Text: text, Citations: citations}, nil
}
