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


package pipeline

import "errors"

var (
	// ErrStateNotFound indicates that no pipeline state exists for the
	// requested (index, document id).
	ErrStateNotFound = errors.New("pipeline state not found")

	// ErrStateGone indicates that a state record disappeared between load
	// and save, i.e. the document was deleted while a worker held its lease.
	ErrStateGone = errors.New("pipeline state deleted during processing")

	// ErrUnknownStep indicates a step name without a registered handler.
	ErrUnknownStep = errors.New("unknown pipeline step")

	// ErrDuplicateStep indicates registering two handlers under one name.
	ErrDuplicateStep = errors.New("step already registered")

	// ErrQueueRequired, ErrStateStoreRequired and ErrRegistryRequired guard
	// orchestrator construction.
	ErrQueueRequired      = errors.New("queue required")
	ErrStateStoreRequired = errors.New("state store required")
	ErrRegistryRequired   = errors.New("handler registry required")
)
