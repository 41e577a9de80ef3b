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


package core

import (
	"fmt"
	"slices"
	"strings"
)

// Automatic tags attached to every chunk at save time. The double-underscore
// prefix is reserved and rejected on user-supplied tags.
const (
	TagDocumentID = "__document_id"
	TagFileID     = "__file_id"
	TagFilePart   = "__file_part"
)

const reservedTagPrefix = "__"

// TagCollection maps a tag key to its set of values. An empty value set
// means "key present with no value".
type TagCollection map[string][]string

// Add appends values under key, skipping values already present.
func (t TagCollection) Add(key string, values ...string) {
	existing := t[key]
	for _, v := range values {
		if !slices.Contains(existing, v) {
			existing = append(existing, v)
		}
	}
	t[key] = existing
}

// Clone returns a deep copy of the collection.
func (t TagCollection) Clone() TagCollection {
	if t == nil {
		return TagCollection{}
	}
	out := make(TagCollection, len(t))
	for k, vs := range t {
		out[k] = slices.Clone(vs)
	}
	return out
}

// HasKey reports whether the key is present, with or without values.
func (t TagCollection) HasKey(key string) bool {
	_, ok := t[key]
	return ok
}

// HasValue reports whether key carries the given value.
func (t TagCollection) HasValue(key, value string) bool {
	return slices.Contains(t[key], value)
}

// First returns the first value under key, or "" when absent.
func (t TagCollection) First(key string) string {
	if vs := t[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Validate checks user-supplied tags: keys must be non-empty and must not
// use the reserved "__" prefix.
func (t TagCollection) Validate() error {
	for key := range t {
		if strings.TrimSpace(key) == "" {
			return ErrEmptyTagKey
		}
		if strings.HasPrefix(key, reservedTagPrefix) {
			return fmt.Errorf("%w: %q", ErrReservedTagKey, key)
		}
	}
	return nil
}

// MemoryFilter is a conjunction of (key, value) equality predicates over a
// chunk's tags. A key mapped to an empty value set only requires the key to
// be present. The empty filter matches everything.
type MemoryFilter map[string][]string

// Empty reports whether the filter has no predicates.
func (f MemoryFilter) Empty() bool {
	return len(f) == 0
}

// Matches reports whether every predicate in the filter holds for tags.
func (f MemoryFilter) Matches(tags TagCollection) bool {
	for key, values := range f {
		if len(values) == 0 {
			if !tags.HasKey(key) {
				return false
			}
			continue
		}
		for _, v := range values {
			if !tags.HasValue(key, v) {
				return false
			}
		}
	}
	return true
}

// MatchAnyFilter evaluates a filter list as a disjunction of conjunctions.
// An empty or nil list matches everything.
func MatchAnyFilter(filters []MemoryFilter, tags TagCollection) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(tags) {
			return true
		}
	}
	return false
}
