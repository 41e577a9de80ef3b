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


package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
)

// GenerateEmbeddingsHandler embeds each text partition, writing the
// vector as a generate_embeddings.<file_id>.<part>.vec artifact (a JSON
// float array).
type GenerateEmbeddingsHandler struct {
	artifacts artifact.Store
	embedder  ai.Embedder
	logger    *slog.Logger
}

var _ pipeline.Handler = (*GenerateEmbeddingsHandler)(nil)

// NewGenerateEmbeddingsHandler creates the generate_embeddings step handler.
func NewGenerateEmbeddingsHandler(artifacts artifact.Store, embedder ai.Embedder) (*GenerateEmbeddingsHandler, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	return &GenerateEmbeddingsHandler{
		artifacts: artifacts,
		embedder:  embedder,
		logger:    slog.Default().With("step", StepGenerateEmbeddings),
	}, nil
}

func (h *GenerateEmbeddingsHandler) Name() string { return StepGenerateEmbeddings }

func (h *GenerateEmbeddingsHandler) SoftDeadline() time.Duration { return 90 * time.Second }

func (h *GenerateEmbeddingsHandler) Invoke(ctx context.Context, st *core.PipelineState) (pipeline.Result, error) {
	for _, f := range st.Files {
		partitions := f.GeneratedBy(StepPartitionText)
		if len(partitions) == 0 {
			// An empty file legitimately produces zero partitions.
			continue
		}

		texts := make([]string, len(partitions))
		for i, p := range partitions {
			data, err := h.artifacts.Get(ctx, p.Key)
			if err != nil {
				return pipeline.Result{}, err
			}
			texts[i] = string(data)
		}

		// The embedding service is the flaky dependency here; its errors
		// surface as retries via the orchestrator.
		vectors, err := h.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			h.logger.Warn("embedding call failed", "file", f.Name, "err", err)
			return pipeline.Result{}, err
		}
		if len(vectors) != len(partitions) {
			return pipeline.Result{}, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(partitions))
		}

		for i, p := range partitions {
			data, err := json.Marshal(vectors[i])
			if err != nil {
				return pipeline.Result{}, err
			}
			name := artifact.StepOutputName(StepGenerateEmbeddings, f.ID, p.Part, "vec")
			key := artifact.Key(st.Index, st.DocumentID, name)
			if err := h.artifacts.Put(ctx, key, data); err != nil {
				return pipeline.Result{}, err
			}
			f.AddGenerated(core.GeneratedFile{
				Step:        StepGenerateEmbeddings,
				Key:         key,
				ContentType: "application/json",
				Part:        p.Part,
				Size:        int64(len(data)),
			})
		}
		h.logger.Debug("embedded partitions", "file", f.Name, "partitions", len(partitions))
	}
	return pipeline.Advance(), nil
}
