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

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// envelopeVersion prefixes every serialized message so future envelope
// changes stay detectable.
const envelopeVersion = 1

// MarshalMessage serializes a Message to its binary wire envelope.
func MarshalMessage(m Message) []byte {
	size := varint.Int.Size(envelopeVersion) +
		ord.String.Size(m.Index) +
		ord.String.Size(m.DocumentID) +
		varint.Int.Size(m.Attempt)
	bs := make([]byte, size)
	n := varint.Int.Marshal(envelopeVersion, bs)
	n += ord.String.Marshal(m.Index, bs[n:])
	n += ord.String.Marshal(m.DocumentID, bs[n:])
	varint.Int.Marshal(m.Attempt, bs[n:])
	return bs
}

// UnmarshalMessage deserializes a Message from its binary wire envelope.
func UnmarshalMessage(bs []byte) (Message, error) {
	var m Message

	version, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return m, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if version != envelopeVersion {
		return m, fmt.Errorf("%w: version %d", ErrBadEnvelope, version)
	}

	m.Index, n, err = unmarshalStringAt(bs, n)
	if err != nil {
		return m, err
	}
	m.DocumentID, n, err = unmarshalStringAt(bs, n)
	if err != nil {
		return m, err
	}
	m.Attempt, _, err = varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return m, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	return m, nil
}

func unmarshalStringAt(bs []byte, at int) (string, int, error) {
	s, n, err := ord.String.Unmarshal(bs[at:])
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	return s, at + n, nil
}
