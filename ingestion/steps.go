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
	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/index"
	"github.com/poiesic/memvault/pipeline"
)

// Step names, in default execution order.
const (
	StepExtractText        = "extract_text"
	StepPartitionText      = "partition_text"
	StepGenerateEmbeddings = "generate_embeddings"
	StepSaveRecords        = "save_records"
)

// DefaultSteps returns the standard pipeline plan for an uploaded document.
func DefaultSteps() []string {
	return []string{StepExtractText, StepPartitionText, StepGenerateEmbeddings, StepSaveRecords}
}

// RegisterDefaults registers the four standard handlers on the registry.
func RegisterDefaults(r *pipeline.Registry, artifacts artifact.Store, embedder ai.Embedder, idx index.Index, chunker Chunker) error {
	extract, err := NewExtractTextHandler(artifacts)
	if err != nil {
		return err
	}
	partition, err := NewPartitionTextHandler(artifacts, chunker)
	if err != nil {
		return err
	}
	embed, err := NewGenerateEmbeddingsHandler(artifacts, embedder)
	if err != nil {
		return err
	}
	save, err := NewSaveRecordsHandler(artifacts, idx)
	if err != nil {
		return err
	}
	for _, h := range []pipeline.Handler{extract, partition, embed, save} {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}
