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


package index

import "errors"

var (
	// ErrIndexClosed is returned by operations on a closed index.
	ErrIndexClosed = errors.New("index is closed")

	// ErrMissingVector is returned when a chunk is upserted without an
	// embedding vector.
	ErrMissingVector = errors.New("chunk has no embedding vector")

	// ErrCorruptRecord is returned when a stored chunk cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt chunk record")
)
