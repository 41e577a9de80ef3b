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


// Package pipeline implements the ingestion orchestration engine: the
// durable, resumable state machine that moves a document through its
// configured sequence of step handlers.
//
// # Moving parts
//
//   - StateStore persists one PipelineState per (index, document id). The
//     default implementation stores the record through the artifact store
//     under the reserved pipeline.state key, so every artifact backend is
//     also a state backend.
//   - Registry maps step names to Handler implementations. It is populated
//     at startup and read-only afterwards.
//   - Orchestrator runs worker loops on a shared pool. Each iteration
//     claims a queue message, loads the document's state, invokes the next
//     handler under its soft deadline, persists the mutated state and
//     settles the lease according to the handler's result.
//
// # Failure policy
//
// A handler returns Advance, Retry or Fatal. Retries re-deliver with
// exponential backoff (base 1s, cap 5min, jitter ±20%); once a message's
// attempt count exceeds the maximum the document fails with a poisoned
// reason. Fatal fails the document immediately. Handler panics are
// recovered and treated as retries; they never crash a worker.
//
// Handlers must be idempotent: the queue is at-least-once and a crashed
// worker's message is redelivered. Deterministic artifact keys make a
// re-invoked handler overwrite its previous output instead of duplicating
// it.
package pipeline
