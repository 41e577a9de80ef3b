package ingestion

import (
	"context"
	"testing"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedState creates a pipeline state with one uploaded source file whose
// content is already in the artifact store.
func seedState(t *testing.T, store artifact.Store, name, mime string, content []byte) *core.PipelineState {
	t.Helper()
	st := core.NewPipelineState("notes", "doc-1", nil, DefaultSteps())
	key := artifact.Key(st.Index, st.DocumentID, artifact.SourceName(0, name))
	require.NoError(t, store.Put(context.Background(), key, content))
	st.Files = []*core.FileRef{{
		ID:   "f0",
		Name: name,
		Key:  key,
		MIME: mime,
		Size: int64(len(content)),
	}}
	return st
}

func TestExtractTextPlainPassthrough(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewExtractTextHandler(store)
	require.NoError(t, err)

	st := seedState(t, store, "note.txt", "text/plain", []byte("Line one.\r\n\r\n\r\nLine two.\x00"))
	result, err := h.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ResultAdvance, result.Kind)

	gen := st.Files[0].GeneratedBy(StepExtractText)
	require.Len(t, gen, 1)
	assert.Equal(t, "notes/doc-1/extract_text.f0.0.txt", gen[0].Key)

	data, err := store.Get(context.Background(), gen[0].Key)
	require.NoError(t, err)
	assert.Equal(t, "Line one.\n\nLine two.", string(data))
}

func TestExtractTextHTML(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewExtractTextHandler(store)
	require.NoError(t, err)

	html := `<html><head><script>ignored()</script></head>
		<body><nav>menu</nav><main><h1>Title</h1><p>Body text here.</p></main></body></html>`
	st := seedState(t, store, "page.html", "text/html", []byte(html))

	result, err := h.Invoke(context.Background(), st)
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultAdvance, result.Kind)

	gen := st.Files[0].GeneratedBy(StepExtractText)
	require.Len(t, gen, 1)
	data, err := store.Get(context.Background(), gen[0].Key)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Body text here.")
	assert.NotContains(t, text, "ignored")
	assert.NotContains(t, text, "menu")
}

func TestExtractTextUnsupportedTypeIsFatal(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewExtractTextHandler(store)
	require.NoError(t, err)

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)
	st := seedState(t, store, "image.png", "image/png", png)

	result, err := h.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ResultFatal, result.Kind)
	assert.ErrorIs(t, result.Reason, ErrUnsupportedType)
}

func TestExtractTextMissingSourceIsFatal(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewExtractTextHandler(store)
	require.NoError(t, err)

	st := seedState(t, store, "note.txt", "text/plain", []byte("hello"))
	require.NoError(t, store.Delete(context.Background(), st.Files[0].Key))

	result, err := h.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ResultFatal, result.Kind)
}

func TestExtractTextIsIdempotent(t *testing.T) {
	store := artifact.NewMemoryStore()
	h, err := NewExtractTextHandler(store)
	require.NoError(t, err)

	st := seedState(t, store, "note.md", "text/markdown", []byte("# Heading\n\nBody."))
	for i := 0; i < 2; i++ {
		result, err := h.Invoke(context.Background(), st)
		require.NoError(t, err)
		require.Equal(t, pipeline.ResultAdvance, result.Kind)
	}

	// Redelivery overwrote in place instead of accumulating.
	assert.Len(t, st.Files[0].GeneratedBy(StepExtractText), 1)
	keys, err := store.List(context.Background(), artifact.DocumentPrefix("notes", "doc-1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2) // source + extracted text
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		name string
		mime string
		data []byte
		want fileKind
	}{
		{"note.txt", "text/plain", []byte("hi"), kindPlainText},
		{"readme.md", "", []byte("# hi"), kindPlainText},
		{"page.html", "text/html; charset=utf-8", []byte("<p>"), kindHTML},
		{"page.htm", "", []byte("<p>"), kindHTML},
		{"doc.pdf", "application/pdf", nil, kindPDF},
		{"doc.pdf", "", nil, kindPDF},
		{"sheet.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil, kindSpreadsheet},
		{"data.json", "application/json", []byte("{}"), kindPlainText},
		{"mystery", "", []byte("plain words only"), kindPlainText},
		{"image.png", "image/png", []byte{0x89, 'P', 'N', 'G'}, kindUnsupported},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, detectKind(tc.name, tc.mime, tc.data), "%s (%s)", tc.name, tc.mime)
	}
}
