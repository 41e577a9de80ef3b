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


// Package queue provides the durable work queue that drives the ingestion
// pipeline.
//
// # Delivery contract
//
// The queue is at-least-once: a message may be delivered more than once and
// handlers must be idempotent. Within one (index, document) pair delivery is
// strictly FIFO with at most one outstanding lease, so a document is never
// processed by two workers at the same time. Across documents there is no
// ordering.
//
// A dequeued message is invisible to other consumers until its lease
// expires. Lease expiry returns the message with its attempt count
// unchanged; only an explicit Nack increments the count. When the count
// exceeds the configured maximum the message moves to the dead-letter area
// instead of becoming visible again.
//
// # Backends
//
//   - MemoryQueue: single-process, for tests and embedded use.
//   - DiskQueue: one file per message under a spool directory, with
//     O_EXCL lease files as advisory locks. Survives restarts.
//   - RedisQueue: shared queue for distributed deployments.
//
// Messages travel as a compact binary envelope; see envelope.go.
package queue
