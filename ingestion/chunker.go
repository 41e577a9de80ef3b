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


package ingestion

import (
	"strings"
	"unicode/utf8"
)

// Chunker splits extracted text into overlapping partitions. Splitting is
// sentence-aware: a partition closes at the sentence boundary nearest the
// size target, and the tail of each partition repeats at the head of the
// next for retrieval continuity.
type Chunker struct {
	// Size is the partition size target in bytes.
	Size int
	// Overlap is how many trailing bytes repeat into the next partition.
	Overlap int
	// MinLength drops partitions shorter than this, except when the whole
	// input is a single short partition.
	MinLength int
}

// DefaultChunker returns the standard chunking configuration.
func DefaultChunker() Chunker {
	return Chunker{Size: 1000, Overlap: 200, MinLength: 100}
}

func (c Chunker) withDefaults() Chunker {
	d := DefaultChunker()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = d.Overlap
		if c.Overlap >= c.Size {
			c.Overlap = c.Size / 5
		}
	}
	if c.MinLength <= 0 {
		c.MinLength = d.MinLength
	}
	return c
}

// Split partitions text. Empty or whitespace-only input yields nil; input
// shorter than one partition yields exactly one.
func (c Chunker) Split(text string) []string {
	c = c.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > c.Size {
			chunk := strings.TrimSpace(current.String())
			if len(chunk) >= c.MinLength {
				chunks = append(chunks, chunk)
			}

			// Seed the next partition with the tail of this one. The cut
			// backs up to a rune boundary so multi-byte characters stay
			// intact.
			if c.Overlap > 0 && current.Len() > c.Overlap {
				tail := current.String()
				cut := len(tail) - c.Overlap
				for cut > 0 && !utf8.RuneStart(tail[cut]) {
					cut--
				}
				current.Reset()
				current.WriteString(tail[cut:])
			} else {
				current.Reset()
			}
		}
		current.WriteString(sentence)
		current.WriteByte(' ')
	}

	if chunk := strings.TrimSpace(current.String()); len(chunk) >= c.MinLength {
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		// Everything was below MinLength; keep the input as one partition
		// rather than silently dropping content.
		return []string{text}
	}
	return chunks
}

// splitSentences breaks text at sentence-ending punctuation followed by
// whitespace. It is intentionally simple; embedding quality does not
// hinge on perfect segmentation.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		next := text[i+1]
		if next != ' ' && next != '\n' && next != '\t' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
