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


// Package core defines the domain model shared by every memvault component.
//
// The central types are:
//
//   - Document: a client-submitted bundle of files sharing an id and tags.
//   - TagCollection and MemoryFilter: multi-valued labels and the DNF filter
//     expressions applied to them at search time.
//   - PipelineState: the persistent record of a document's progress through
//     the ingestion pipeline (completed steps, remaining steps, generated
//     artifacts, status, failure reason).
//   - Chunk: the unit of retrieval, a text fragment with an embedding vector
//     and the tags it inherited from its document.
//
// PipelineState is serialized as a versioned JSON document; readers reject
// records written by a newer schema version. All other types are plain data
// and carry no behaviour beyond validation and small accessors.
package core
