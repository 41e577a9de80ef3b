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


// Package artifact provides content-addressed blob storage for pipeline
// intermediate files.
//
// Keys are hierarchical strings of the form <index>/<document_id>/<name>.
// Put is atomic per key, Get fails with ErrNotFound when absent, and Delete
// removes a whole key prefix idempotently. Keys are immutable once written:
// handlers mutate by writing new keys and recording them as descendants on
// the pipeline state, never by rewriting an existing artifact in place.
//
// Three backends implement the Store interface:
//
//   - MemoryStore: map-backed, for tests and throwaway deployments.
//   - FSStore: local filesystem with write-to-temp-then-rename atomicity,
//     for single-node deployments.
//   - RedisStore: hash-backed remote store for distributed deployments.
//
// All implementations are safe for concurrent use.
package artifact
