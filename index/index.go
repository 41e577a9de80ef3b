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
	"math"
	"slices"

	"github.com/poiesic/memvault/core"
)

// Index is the retrieval store for chunk records.
//
// All operations take the index name explicitly; an unknown index behaves
// like an empty one. Implementations must be thread-safe.
type Index interface {
	// Upsert inserts or replaces the given chunks in the named index.
	// Chunks without a vector are rejected with ErrMissingVector.
	Upsert(ctx context.Context, index string, chunks []*core.Chunk) error

	// DeleteByFilter removes every chunk whose tags match any of the
	// filters and returns the number removed. No filters means no
	// deletion; use DeleteIndex to drop everything.
	DeleteByFilter(ctx context.Context, index string, filters []core.MemoryFilter) (int, error)

	// Search returns up to limit chunks most similar to vector, best
	// first, keeping only scores of at least minScore and tags matching
	// any of the filters. A negative limit means unbounded; zero returns
	// nothing.
	Search(ctx context.Context, index string, vector []float32, filters []core.MemoryFilter, minScore float32, limit int) ([]core.ScoredChunk, error)

	// ListIndexes returns the names of indexes holding at least one chunk.
	ListIndexes(ctx context.Context) ([]string, error)

	// DeleteIndex removes an index and all of its chunks. Idempotent.
	DeleteIndex(ctx context.Context, index string) error

	// Close releases backend resources.
	Close() error
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 when either vector is empty or zero-length.
func CosineSimilarity(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rankChunks scores candidates against the query vector and applies the
// shared filter, threshold and limit semantics. It is the reference
// ranking used by the scan-based backends.
func rankChunks(candidates []*core.Chunk, vector []float32, filters []core.MemoryFilter, minScore float32, limit int) []core.ScoredChunk {
	if limit == 0 {
		return nil
	}
	var results []core.ScoredChunk
	for _, c := range candidates {
		if len(c.Vector) == 0 {
			continue
		}
		if !core.MatchAnyFilter(filters, c.Tags) {
			continue
		}
		score := CosineSimilarity(vector, c.Vector)
		if score < minScore {
			continue
		}
		results = append(results, core.ScoredChunk{Chunk: c, Score: score})
	}

	slices.SortFunc(results, func(a, b core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		// Stable order for equal scores.
		if a.Chunk.ID < b.Chunk.ID {
			return -1
		}
		if a.Chunk.ID > b.Chunk.ID {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
