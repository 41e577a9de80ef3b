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


package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StateName is the reserved artifact name under which a document's pipeline
// state record is stored.
const StateName = "pipeline.state"

// Store is the capability interface for artifact storage backends.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// Put writes data under key, atomically per key: readers never observe
	// a partial write. Overwrites an existing key.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the content stored under key.
	// Returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes every key starting with prefix. It is recursive and
	// idempotent: deleting an absent prefix is not an error.
	Delete(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}

// Key builds the canonical artifact key <index>/<documentID>/<name>.
func Key(index, documentID, name string) string {
	return index + "/" + documentID + "/" + name
}

// StateKey returns the reserved key of a document's pipeline state record.
func StateKey(index, documentID string) string {
	return Key(index, documentID, StateName)
}

// DocumentPrefix returns the key prefix covering every artifact of a document.
func DocumentPrefix(index, documentID string) string {
	return index + "/" + documentID + "/"
}

// IndexPrefix returns the key prefix covering every artifact of an index.
func IndexPrefix(index string) string {
	return index + "/"
}

// SourceName builds the reserved artifact name of the n-th original source
// file, preserving its extension: source.<n>.<ext>.
func SourceName(n int, originalName string) string {
	return fmt.Sprintf("source.%d.%s", n, extOf(originalName))
}

// StepOutputName builds the artifact name of a step output:
// <step>.<file_id>.<part>.<ext>. Names are deterministic functions of their
// coordinates so redelivered handlers overwrite instead of accumulating.
func StepOutputName(step, fileID string, part int, ext string) string {
	return fmt.Sprintf("%s.%s.%d.%s", step, fileID, part, ext)
}

func extOf(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}

// ValidateKey rejects keys that could escape a hierarchical backend.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
