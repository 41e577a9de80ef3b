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


package index

import (
	"context"
	"sort"
	"sync"

	"github.com/poiesic/memvault/core"
)

// MemoryIndex keeps chunks in process memory. Search is a full scan, which
// is fine at the scale tests and embedded single-user setups run at.
type MemoryIndex struct {
	mu      sync.RWMutex
	indexes map[string]map[core.ID]*core.Chunk
	closed  bool
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{indexes: make(map[string]map[core.ID]*core.Chunk)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, index string, chunks []*core.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrIndexClosed
	}
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return ErrMissingVector
		}
	}
	byID := m.indexes[index]
	if byID == nil {
		byID = make(map[core.ID]*core.Chunk)
		m.indexes[index] = byID
	}
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return nil
}

func (m *MemoryIndex) DeleteByFilter(ctx context.Context, index string, filters []core.MemoryFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrIndexClosed
	}
	if len(filters) == 0 {
		return 0, nil
	}
	byID := m.indexes[index]
	removed := 0
	for id, c := range byID {
		if core.MatchAnyFilter(filters, c.Tags) {
			delete(byID, id)
			removed++
		}
	}
	if len(byID) == 0 {
		delete(m.indexes, index)
	}
	return removed, nil
}

func (m *MemoryIndex) Search(ctx context.Context, index string, vector []float32, filters []core.MemoryFilter, minScore float32, limit int) ([]core.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrIndexClosed
	}
	byID := m.indexes[index]
	candidates := make([]*core.Chunk, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	return rankChunks(candidates, vector, filters, minScore, limit), nil
}

func (m *MemoryIndex) ListIndexes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrIndexClosed
	}
	names := make([]string, 0, len(m.indexes))
	for name, byID := range m.indexes {
		if len(byID) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryIndex) DeleteIndex(ctx context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrIndexClosed
	}
	delete(m.indexes, index)
	return nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.indexes = nil
	return nil
}
