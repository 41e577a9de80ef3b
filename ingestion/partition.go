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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
)

// PartitionTextHandler splits each file's extracted text into overlapping
// partitions, written as partition_text.<file_id>.<part>.txt artifacts.
type PartitionTextHandler struct {
	artifacts artifact.Store
	chunker   Chunker
	logger    *slog.Logger
}

var _ pipeline.Handler = (*PartitionTextHandler)(nil)

// NewPartitionTextHandler creates the partition_text step handler.
func NewPartitionTextHandler(artifacts artifact.Store, chunker Chunker) (*PartitionTextHandler, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	return &PartitionTextHandler{
		artifacts: artifacts,
		chunker:   chunker,
		logger:    slog.Default().With("step", StepPartitionText),
	}, nil
}

func (h *PartitionTextHandler) Name() string { return StepPartitionText }

func (h *PartitionTextHandler) SoftDeadline() time.Duration { return time.Minute }

func (h *PartitionTextHandler) Invoke(ctx context.Context, st *core.PipelineState) (pipeline.Result, error) {
	for _, f := range st.Files {
		sources := f.GeneratedBy(StepExtractText)
		if len(sources) == 0 {
			// The plan ran extract_text before us, so its output cannot
			// legitimately be absent.
			return pipeline.Fatal(fmt.Errorf("%w: no extracted text for %s", ErrMissingUpstream, f.Name)), nil
		}

		part := 0
		for _, src := range sources {
			data, err := h.artifacts.Get(ctx, src.Key)
			if err != nil {
				return pipeline.Result{}, err
			}

			for _, chunk := range h.chunker.Split(string(data)) {
				name := artifact.StepOutputName(StepPartitionText, f.ID, part, "txt")
				key := artifact.Key(st.Index, st.DocumentID, name)
				if err := h.artifacts.Put(ctx, key, []byte(chunk)); err != nil {
					return pipeline.Result{}, err
				}
				f.AddGenerated(core.GeneratedFile{
					Step:        StepPartitionText,
					Key:         key,
					ContentType: "text/plain; charset=utf-8",
					Part:        part,
					Size:        int64(len(chunk)),
				})
				part++
			}
		}
		h.logger.Debug("partitioned file", "file", f.Name, "partitions", part)
	}
	return pipeline.Advance(), nil
}
