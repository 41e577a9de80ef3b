package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerEmptyInput(t *testing.T) {
	c := DefaultChunker()
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestChunkerShortInputIsOnePartition(t *testing.T) {
	c := DefaultChunker()
	chunks := c.Split("Just one short note.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just one short note.", chunks[0])
}

func TestChunkerSplitsAtSentenceBoundaries(t *testing.T) {
	c := Chunker{Size: 80, Overlap: 0, MinLength: 10}
	text := strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10))

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), c.Size+len("The quick brown fox jumps over the lazy dog."))
		assert.True(t, strings.HasSuffix(chunk, "dog."), "chunk should end at a sentence boundary: %q", chunk)
	}
}

func TestChunkerOverlapCarriesTail(t *testing.T) {
	c := Chunker{Size: 100, Overlap: 30, MinLength: 10}
	text := strings.TrimSpace(strings.Repeat("Sentence number one here. ", 20))

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// The head of each later chunk repeats the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > c.Overlap {
			head = head[:c.Overlap]
		}
		assert.Contains(t, chunks[i-1]+" "+chunks[i], strings.TrimSpace(head))
	}
}

func TestChunkerKeepsSubMinimumInput(t *testing.T) {
	// Input longer than Size but with every partition under MinLength
	// must still survive as one partition.
	c := Chunker{Size: 10, Overlap: 0, MinLength: 500}
	text := "Alpha beta. Gamma delta. Epsilon zeta."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, got)

	// Decimal points do not split.
	got = splitSentences("Pi is 3.14 roughly. Yes.")
	assert.Equal(t, []string{"Pi is 3.14 roughly.", "Yes."}, got)
}

func TestChunkerOverlapKeepsRunesIntact(t *testing.T) {
	c := Chunker{Size: 100, Overlap: 15, MinLength: 10}
	text := strings.TrimSpace(strings.Repeat("Überlänge prüft die Zerlegung größerer Texte. ", 20))

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "partition split a rune: %q", chunk)
	}

	// Same property for wide runes, where any byte-offset cut inside a
	// character is invalid.
	cjk := strings.TrimSpace(strings.Repeat("月は地球の周りを回っています. ", 30))
	for _, chunk := range (Chunker{Size: 60, Overlap: 15, MinLength: 5}).Split(cjk) {
		assert.True(t, utf8.ValidString(chunk), "partition split a rune: %q", chunk)
	}
}
