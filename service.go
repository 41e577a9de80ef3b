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


package memvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/ai/openai"
	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/index"
	"github.com/poiesic/memvault/ingestion"
	"github.com/poiesic/memvault/pipeline"
	"github.com/poiesic/memvault/queue"
	"github.com/poiesic/memvault/search"
)

// DefaultIndex is the index uploads land in when no index is named.
const DefaultIndex = "default"

// ErrDocumentInFlight rejects re-ingestion of a document id whose previous
// run has not reached a terminal status yet.
var ErrDocumentInFlight = fmt.Errorf("%w: document is still being processed", core.ErrValidation)

// UploadRequest describes one document ingestion call.
type UploadRequest struct {
	// Index is the target index name. Empty means DefaultIndex; the name is
	// canonicalised before use.
	Index string
	// DocumentID identifies the document within the index. Empty means a
	// fresh id is generated. Re-using an id of a completed document replaces
	// its chunks.
	DocumentID string
	// Tags propagate to every chunk derived from the document.
	Tags core.TagCollection
	// Steps overrides the default pipeline plan. Every name must have a
	// registered handler.
	Steps []string
	// Files are the source files, at least one.
	Files []core.File
}

// Service is the top-level façade: it owns the storage backends, the
// ingestion orchestrator and the searcher, wired from a Config.
type Service struct {
	config    *Config
	queue     queue.Queue
	artifacts artifact.Store
	states    pipeline.StateStore
	idx       index.Index
	registry  *pipeline.Registry
	orch      *pipeline.Orchestrator
	reporter  *pipeline.StatusReporter
	searcher  *search.Searcher
	provider  ai.Provider
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider ai.Provider
	logger   *slog.Logger
}

// WithProvider injects an AI provider, replacing the OpenAI-compatible one
// built from the configuration. Tests use this with the mock provider.
func WithProvider(p ai.Provider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = p
	}
}

// WithServiceLogger sets the logger. Defaults to slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the configured backends and wires the pipeline. The
// returned service does not process documents until Start is called.
func NewService(config *Config, opts ...ServiceOption) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger.With("component", "service")

	provider := options.provider
	if provider == nil {
		aiConfig := ai.NewConfig(
			ai.WithEmbeddingHost(config.AI.EmbeddingHost),
			ai.WithChatHost(config.AI.ChatHost),
			ai.WithEmbeddingModel(config.AI.EmbeddingModel),
			ai.WithChatModel(config.AI.ChatModel),
			ai.WithEmbedRateLimit(config.AI.EmbedRateLimit),
		)
		var err error
		provider, err = openai.NewProvider(aiConfig)
		if err != nil {
			return nil, err
		}
	}

	q, err := openQueue(config)
	if err != nil {
		provider.Close()
		return nil, err
	}

	artifacts, err := openArtifacts(config)
	if err != nil {
		q.Close()
		provider.Close()
		return nil, err
	}

	idx, err := openIndex(config)
	if err != nil {
		artifacts.Close()
		q.Close()
		provider.Close()
		return nil, err
	}

	states := pipeline.NewArtifactStateStore(artifacts)

	registry := pipeline.NewRegistry()
	err = ingestion.RegisterDefaults(registry, artifacts, provider.Embedder(), idx, ingestion.DefaultChunker())
	if err != nil {
		idx.Close()
		artifacts.Close()
		q.Close()
		provider.Close()
		return nil, err
	}

	orchOpts := []pipeline.OrchestratorOption{
		pipeline.WithWorkers(config.Workers),
		pipeline.WithOrchestratorLogger(options.logger),
	}
	if config.MaxAttempts > 0 {
		orchOpts = append(orchOpts, pipeline.WithMaxAttempts(config.MaxAttempts))
	}
	orch, err := pipeline.NewOrchestrator(q, states, registry, orchOpts...)
	if err != nil {
		idx.Close()
		artifacts.Close()
		q.Close()
		provider.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(idx, provider.Embedder(),
		search.WithLogger(options.logger),
		search.WithAnswerGenerator(provider.AnswerGenerator()),
	)
	if err != nil {
		idx.Close()
		artifacts.Close()
		q.Close()
		provider.Close()
		return nil, err
	}

	return &Service{
		config:    config,
		queue:     q,
		artifacts: artifacts,
		states:    states,
		idx:       idx,
		registry:  registry,
		orch:      orch,
		reporter:  pipeline.NewStatusReporter(states, q),
		searcher:  searcher,
		provider:  provider,
		logger:    logger,
	}, nil
}

func openQueue(config *Config) (queue.Queue, error) {
	var qopts []queue.Option
	if config.Visibility > 0 {
		qopts = append(qopts, queue.WithVisibilityTimeout(time.Duration(config.Visibility)))
	}
	if config.MaxAttempts > 0 {
		qopts = append(qopts, queue.WithMaxAttempts(config.MaxAttempts))
	}
	switch config.Queue.Backend {
	case BackendMemory:
		return queue.NewMemoryQueue(qopts...), nil
	case BackendDisk:
		return queue.NewDiskQueue(config.queueDir(), qopts...)
	case BackendRedis:
		return queue.NewRedisQueue(config.Queue.RedisURL, qopts)
	default:
		return nil, fmt.Errorf("queue: unknown backend %q", config.Queue.Backend)
	}
}

func openArtifacts(config *Config) (artifact.Store, error) {
	switch config.Artifacts.Backend {
	case BackendMemory:
		return artifact.NewMemoryStore(), nil
	case BackendDisk:
		return artifact.NewFSStore(config.artifactDir())
	case BackendRedis:
		return artifact.NewRedisStore(config.Artifacts.RedisURL)
	default:
		return nil, fmt.Errorf("artifacts: unknown backend %q", config.Artifacts.Backend)
	}
}

func openIndex(config *Config) (index.Index, error) {
	switch config.Index.Backend {
	case BackendMemory:
		return index.NewMemoryIndex(), nil
	case BackendBadger:
		return index.OpenBadgerIndex(config.indexDir(), false)
	case BackendPgVector:
		pgConfig := index.PgVectorConfig{
			ConnString: config.Index.ConnString,
			TableName:  config.Index.TableName,
			VectorDim:  config.Index.VectorDim,
		}
		return index.NewPgVectorIndex(context.Background(), pgConfig)
	default:
		return nil, fmt.Errorf("index: unknown backend %q", config.Index.Backend)
	}
}

// Start launches the ingestion workers. They run until ctx is cancelled or
// Close is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := s.orch.Start(ctx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.logger.Info("service started", "workers", s.config.Workers)
	return nil
}

// Close stops the workers, waits for in-flight handler invocations and
// releases every backend.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.orch.Release()

	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}
	if err := s.idx.Close(); err != nil {
		s.logger.Error("error closing index", "err", err)
		return err
	}
	if err := s.queue.Close(); err != nil {
		s.logger.Error("error closing queue", "err", err)
		return err
	}
	if err := s.artifacts.Close(); err != nil {
		s.logger.Error("error closing artifact store", "err", err)
		return err
	}
	return nil
}

// Upload validates a document, stores its source files, creates the
// pipeline state and enqueues the first processing message. It returns the
// document id, generated when the request did not carry one.
//
// Re-uploading the id of a document in a terminal status replaces it; while
// a previous run is still in flight the call fails with ErrDocumentInFlight.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (string, error) {
	indexName, err := core.CanonicalIndexName(req.Index, DefaultIndex)
	if err != nil {
		return "", err
	}

	doc := &core.Document{
		Index: indexName,
		ID:    req.DocumentID,
		Tags:  req.Tags,
		Files: req.Files,
	}
	if doc.ID == "" {
		doc.ID = core.NewDocumentID()
	}
	if err := core.ValidateDocument(doc); err != nil {
		return "", err
	}

	steps := req.Steps
	if len(steps) == 0 {
		steps = ingestion.DefaultSteps()
	}
	if err := s.registry.Validate(steps); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	existing, err := s.states.Load(ctx, indexName, doc.ID)
	if err == nil && !existing.Status.Terminal() {
		return "", fmt.Errorf("%w: %s/%s", ErrDocumentInFlight, indexName, doc.ID)
	}
	if err != nil && !errors.Is(err, pipeline.ErrStateNotFound) {
		// Corrupt or unreadable state blocks neither replacement nor a
		// fresh upload; it gets overwritten below.
		s.logger.Warn("unreadable prior state, replacing", "index", indexName, "document", doc.ID, "err", err)
	}

	state := core.NewPipelineState(indexName, doc.ID, doc.Tags, steps)
	for n, f := range doc.Files {
		key := artifact.Key(indexName, doc.ID, artifact.SourceName(n, f.Name))
		if err := s.artifacts.Put(ctx, key, f.Content); err != nil {
			return "", fmt.Errorf("storing source file %q: %w", f.Name, err)
		}
		state.Files = append(state.Files, &core.FileRef{
			ID:   fmt.Sprintf("f%d", n),
			Name: f.Name,
			Key:  key,
			MIME: http.DetectContentType(f.Content),
			Size: int64(len(f.Content)),
		})
	}

	if err := s.states.Save(ctx, state); err != nil {
		return "", err
	}
	err = s.queue.Enqueue(ctx, queue.Message{Index: indexName, DocumentID: doc.ID})
	if err != nil {
		return "", err
	}

	s.logger.Info("document uploaded", "index", indexName, "document", doc.ID, "files", len(doc.Files))
	return doc.ID, nil
}

// Status reports a document's pipeline progress.
// Returns pipeline.ErrStateNotFound for unknown documents.
func (s *Service) Status(ctx context.Context, indexName, documentID string) (*pipeline.DocumentStatus, error) {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return nil, err
	}
	return s.reporter.StatusOf(ctx, indexName, documentID)
}

// ListDocuments reports the status of every document in an index.
func (s *Service) ListDocuments(ctx context.Context, indexName string) ([]*pipeline.DocumentStatus, error) {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return nil, err
	}
	return s.reporter.List(ctx, indexName)
}

// IsDocumentReady reports whether a document has completed its pipeline
// and its chunks are searchable.
func (s *Service) IsDocumentReady(ctx context.Context, indexName, documentID string) (bool, error) {
	status, err := s.Status(ctx, indexName, documentID)
	if err != nil {
		return false, err
	}
	return status.Ready, nil
}

// Cancel stops further processing of a document. Idempotent on documents
// already in a terminal status.
func (s *Service) Cancel(ctx context.Context, indexName, documentID string) error {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return err
	}
	return s.orch.Cancel(ctx, indexName, documentID)
}

// DeleteDocument removes a document entirely: its state record, every
// stored artifact and every index chunk carrying its id. A worker holding
// the document's lease detects the missing state on save and aborts.
// Idempotent.
func (s *Service) DeleteDocument(ctx context.Context, indexName, documentID string) error {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return err
	}
	// State first, so an in-flight worker cannot resurrect artifacts after
	// they are gone.
	if err := s.states.Delete(ctx, indexName, documentID); err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, artifact.DocumentPrefix(indexName, documentID)); err != nil {
		return err
	}
	filter := []core.MemoryFilter{{core.TagDocumentID: {documentID}}}
	removed, err := s.idx.DeleteByFilter(ctx, indexName, filter)
	if err != nil {
		return err
	}
	s.logger.Info("document deleted", "index", indexName, "document", documentID, "chunks", removed)
	return nil
}

// DeleteIndex removes an index with all its documents, artifacts and
// chunks. Idempotent.
func (s *Service) DeleteIndex(ctx context.Context, indexName string) error {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, artifact.IndexPrefix(indexName)); err != nil {
		return err
	}
	if err := s.idx.DeleteIndex(ctx, indexName); err != nil {
		return err
	}
	s.logger.Info("index deleted", "index", indexName)
	return nil
}

// ListIndexes returns the names of every index holding chunks.
func (s *Service) ListIndexes(ctx context.Context) ([]string, error) {
	return s.idx.ListIndexes(ctx)
}

// Search returns the chunks most relevant to the query, best first.
func (s *Service) Search(ctx context.Context, indexName, query string, filters []core.MemoryFilter, minRelevance float32, limit int) ([]core.ScoredChunk, error) {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, indexName, query, filters, minRelevance, limit)
}

// Ask answers a question grounded on the most relevant chunks, with
// citations.
func (s *Service) Ask(ctx context.Context, indexName, question string, filters []core.MemoryFilter, minRelevance float32, limit int) (*search.Answer, error) {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return nil, err
	}
	return s.searcher.Ask(ctx, indexName, question, filters, minRelevance, limit)
}

// ReembedIndex re-runs the embedding and save steps for every completed
// document in an index, against the artifacts already extracted and
// partitioned. Used after switching embedding models. Returns the number of
// documents re-enqueued; documents still in flight are skipped.
func (s *Service) ReembedIndex(ctx context.Context, indexName string) (int, error) {
	indexName, err := core.CanonicalIndexName(indexName, DefaultIndex)
	if err != nil {
		return 0, err
	}
	ids, err := s.states.List(ctx, indexName)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, id := range ids {
		st, err := s.states.Load(ctx, indexName, id)
		if err != nil {
			s.logger.Warn("skipping unreadable document", "index", indexName, "document", id, "err", err)
			continue
		}
		if st.Status != core.StatusComplete {
			continue
		}
		rerun := []string{ingestion.StepGenerateEmbeddings, ingestion.StepSaveRecords}
		st.StepsToExecute = rerun
		kept := st.StepsCompleted[:0]
		for _, step := range st.StepsCompleted {
			if !slices.Contains(rerun, step) {
				kept = append(kept, step)
			}
		}
		st.StepsCompleted = kept
		st.Status = core.StatusPending
		st.FailureReason = nil
		st.Touch()
		if err := s.states.Save(ctx, st); err != nil {
			return enqueued, err
		}
		err = s.queue.Enqueue(ctx, queue.Message{Index: indexName, DocumentID: id})
		if err != nil {
			return enqueued, err
		}
		enqueued++
	}

	s.logger.Info("index re-embedding enqueued", "index", indexName, "documents", enqueued)
	return enqueued, nil
}

// DeadLetters returns the messages that exhausted their processing
// attempts.
func (s *Service) DeadLetters(ctx context.Context) ([]queue.Message, error) {
	return s.reporter.DeadLetters(ctx)
}

// Stats returns a snapshot of the orchestrator counters.
func (s *Service) Stats() pipeline.Stats {
	return s.orch.Stats()
}
