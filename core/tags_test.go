package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagCollectionAdd(t *testing.T) {
	tags := TagCollection{}
	tags.Add("user", "alice")
	tags.Add("user", "bob", "alice") // duplicate value ignored
	tags.Add("draft")                // key with no values

	assert.Equal(t, []string{"alice", "bob"}, tags["user"])
	assert.True(t, tags.HasKey("draft"))
	assert.Empty(t, tags["draft"])
}

func TestTagCollectionClone(t *testing.T) {
	tags := TagCollection{"user": {"alice"}}
	clone := tags.Clone()
	clone.Add("user", "bob")

	assert.Equal(t, []string{"alice"}, tags["user"])
	assert.Equal(t, []string{"alice", "bob"}, clone["user"])

	var nilTags TagCollection
	assert.NotNil(t, nilTags.Clone())
}

func TestTagCollectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		tags    TagCollection
		wantErr error
	}{
		{"valid", TagCollection{"user": {"alice"}}, nil},
		{"empty key", TagCollection{"": {"x"}}, ErrEmptyTagKey},
		{"whitespace key", TagCollection{"  ": {"x"}}, ErrEmptyTagKey},
		{"reserved prefix", TagCollection{"__document_id": {"x"}}, ErrReservedTagKey},
		{"empty collection", TagCollection{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tags.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestMemoryFilterMatches(t *testing.T) {
	tags := TagCollection{
		"user": {"alice", "bob"},
		"type": {"news"},
		"flag": {},
	}

	tests := []struct {
		name   string
		filter MemoryFilter
		want   bool
	}{
		{"empty filter matches everything", MemoryFilter{}, true},
		{"single match", MemoryFilter{"user": {"alice"}}, true},
		{"conjunction all present", MemoryFilter{"user": {"alice"}, "type": {"news"}}, true},
		{"conjunction one missing", MemoryFilter{"user": {"alice"}, "type": {"sports"}}, false},
		{"value absent", MemoryFilter{"user": {"carol"}}, false},
		{"key presence only", MemoryFilter{"flag": {}}, true},
		{"key presence missing", MemoryFilter{"other": {}}, false},
		{"multiple values same key", MemoryFilter{"user": {"alice", "bob"}}, true},
		{"multiple values one absent", MemoryFilter{"user": {"alice", "carol"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tags))
		})
	}
}

func TestMatchAnyFilter(t *testing.T) {
	tags := TagCollection{"user": {"alice"}}

	// No filters means everything matches.
	assert.True(t, MatchAnyFilter(nil, tags))
	assert.True(t, MatchAnyFilter([]MemoryFilter{}, tags))

	// Disjunction: one matching branch suffices.
	filters := []MemoryFilter{
		{"user": {"carol"}},
		{"user": {"alice"}},
	}
	assert.True(t, MatchAnyFilter(filters, tags))

	// No branch matches.
	filters = []MemoryFilter{
		{"user": {"carol"}},
		{"type": {"news"}},
	}
	assert.False(t, MatchAnyFilter(filters, tags))
}

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("idx", "doc-1", "0", 3)
	b := ChunkID("idx", "doc-1", "0", 3)
	c := ChunkID("idx", "doc-1", "0", 4)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
