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


// Package ingestion provides the pipeline step handlers that turn
// uploaded documents into searchable chunk records:
//
//	extract_text         -> plain text per source file
//	partition_text       -> overlapping text partitions
//	generate_embeddings  -> one vector per partition
//	save_records         -> chunk records in the retrieval index
//
// Each handler reads its predecessor's artifacts and writes its own under
// deterministic keys, so a crashed and redelivered invocation overwrites
// its partial output instead of duplicating it.
package ingestion
