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


// Package index stores chunk records and answers vector similarity
// queries over them. Records are grouped into named indexes; within an
// index every chunk id is unique and upserts replace.
//
// Three backends are provided: an in-process map for tests and embedded
// use, a BadgerDB backend for single-node persistence, and a
// pgvector-backed Postgres backend for deployments that already run a
// database.
package index
