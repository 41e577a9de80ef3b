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


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
)

// StateStore persists pipeline state records, one per (index, document id).
// Implementations must be thread-safe; per-key write serialisation is
// guaranteed by the queue's single-lease contract, so last-writer-wins
// saves are acceptable.
type StateStore interface {
	// Load returns the state for (index, documentID).
	// Returns ErrStateNotFound when absent; decoding failures surface the
	// core.ErrCorruptState / core.ErrSchemaVersion family.
	Load(ctx context.Context, index, documentID string) (*core.PipelineState, error)

	// Save writes the state unconditionally. Used at ingress to create or
	// replace a record.
	Save(ctx context.Context, state *core.PipelineState) error

	// Update writes the state only while the record still exists.
	// Returns ErrStateGone when the document was deleted since Load;
	// workers observe this and abort without re-enqueueing.
	Update(ctx context.Context, state *core.PipelineState) error

	// Delete removes the state record. Idempotent.
	Delete(ctx context.Context, index, documentID string) error

	// List returns the document ids with a state record in the index.
	List(ctx context.Context, index string) ([]string, error)
}

// ArtifactStateStore keeps state records in the artifact store under the
// reserved pipeline.state key, inheriting the backend's per-key atomicity.
type ArtifactStateStore struct {
	artifacts artifact.Store
}

var _ StateStore = (*ArtifactStateStore)(nil)

// NewArtifactStateStore wraps an artifact store as a state store.
func NewArtifactStateStore(artifacts artifact.Store) *ArtifactStateStore {
	return &ArtifactStateStore{artifacts: artifacts}
}

func (s *ArtifactStateStore) Load(ctx context.Context, index, documentID string) (*core.PipelineState, error) {
	data, err := s.artifacts.Get(ctx, artifact.StateKey(index, documentID))
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrStateNotFound, index, documentID)
	}
	if err != nil {
		return nil, err
	}
	return core.DecodeState(data)
}

func (s *ArtifactStateStore) Save(ctx context.Context, state *core.PipelineState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	return s.artifacts.Put(ctx, artifact.StateKey(state.Index, state.DocumentID), data)
}

func (s *ArtifactStateStore) Update(ctx context.Context, state *core.PipelineState) error {
	key := artifact.StateKey(state.Index, state.DocumentID)
	if _, err := s.artifacts.Get(ctx, key); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrStateGone, state.Index, state.DocumentID)
		}
		return err
	}
	return s.Save(ctx, state)
}

func (s *ArtifactStateStore) Delete(ctx context.Context, index, documentID string) error {
	return s.artifacts.Delete(ctx, artifact.StateKey(index, documentID))
}

func (s *ArtifactStateStore) List(ctx context.Context, index string) ([]string, error) {
	keys, err := s.artifacts.List(ctx, artifact.IndexPrefix(index))
	if err != nil {
		return nil, err
	}
	var ids []string
	suffix := "/" + artifact.StateName
	for _, key := range keys {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		rest := strings.TrimPrefix(key, artifact.IndexPrefix(index))
		ids = append(ids, strings.TrimSuffix(rest, suffix))
	}
	return ids, nil
}
