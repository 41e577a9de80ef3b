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


package queue

import "errors"

var (
	// ErrUnknownLease indicates an ack or nack with an expired or unknown
	// lease token.
	ErrUnknownLease = errors.New("unknown or expired lease")

	// ErrQueueClosed indicates an operation on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrBadEnvelope indicates a message envelope that cannot be decoded.
	ErrBadEnvelope = errors.New("malformed message envelope")
)
