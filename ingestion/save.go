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
	"strconv"
	"time"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/index"
	"github.com/poiesic/memvault/pipeline"
)

// SaveRecordsHandler assembles chunk records from the partition and
// embedding artifacts and upserts them into the retrieval index. Records
// from a previous ingest of the same document id are removed first, so a
// re-ingest fully replaces.
type SaveRecordsHandler struct {
	artifacts artifact.Store
	index     index.Index
	logger    *slog.Logger
}

var _ pipeline.Handler = (*SaveRecordsHandler)(nil)

// NewSaveRecordsHandler creates the save_records step handler.
func NewSaveRecordsHandler(artifacts artifact.Store, idx index.Index) (*SaveRecordsHandler, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index required")
	}
	return &SaveRecordsHandler{
		artifacts: artifacts,
		index:     idx,
		logger:    slog.Default().With("step", StepSaveRecords),
	}, nil
}

func (h *SaveRecordsHandler) Name() string { return StepSaveRecords }

func (h *SaveRecordsHandler) SoftDeadline() time.Duration { return time.Minute }

func (h *SaveRecordsHandler) Invoke(ctx context.Context, st *core.PipelineState) (pipeline.Result, error) {
	var chunks []*core.Chunk
	for _, f := range st.Files {
		vectors := make(map[int][]float32)
		for _, g := range f.GeneratedBy(StepGenerateEmbeddings) {
			data, err := h.artifacts.Get(ctx, g.Key)
			if err != nil {
				return pipeline.Result{}, err
			}
			var vec []float32
			if err := json.Unmarshal(data, &vec); err != nil {
				return pipeline.Result{}, fmt.Errorf("decode vector %s: %w", g.Key, err)
			}
			vectors[g.Part] = vec
		}

		for _, p := range f.GeneratedBy(StepPartitionText) {
			vec, ok := vectors[p.Part]
			if !ok {
				return pipeline.Fatal(fmt.Errorf("%w: no vector for %s part %d", ErrMissingUpstream, f.Name, p.Part)), nil
			}
			data, err := h.artifacts.Get(ctx, p.Key)
			if err != nil {
				return pipeline.Result{}, err
			}

			tags := st.Tags.Clone()
			tags.Add(core.TagDocumentID, st.DocumentID)
			tags.Add(core.TagFileID, f.ID)
			tags.Add(core.TagFilePart, strconv.Itoa(p.Part))

			chunks = append(chunks, &core.Chunk{
				ID:         core.ChunkID(st.Index, st.DocumentID, f.ID, p.Part),
				DocumentID: st.DocumentID,
				FileID:     f.ID,
				Part:       p.Part,
				Text:       string(data),
				Vector:     vec,
				Tags:       tags,
			})
		}
	}

	// Replace semantics: a re-ingest of the document id must not leave
	// stale chunks from the prior content behind.
	removed, err := h.index.DeleteByFilter(ctx, st.Index,
		[]core.MemoryFilter{{core.TagDocumentID: {st.DocumentID}}})
	if err != nil {
		return pipeline.Result{}, err
	}
	if len(chunks) > 0 {
		if err := h.index.Upsert(ctx, st.Index, chunks); err != nil {
			return pipeline.Result{}, err
		}
	}

	h.logger.Info("saved chunk records", "documentID", st.DocumentID, "chunks", len(chunks), "replaced", removed)
	return pipeline.Advance(), nil
}
