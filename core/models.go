package core

// Status describes where a document is in its pipeline lifecycle.
type Status string

const (
	// StatusPending means the document is queued but no step has run yet.
	StatusPending Status = "pending"
	// StatusProcessing means a worker currently holds the document's lease.
	StatusProcessing Status = "processing"
	// StatusComplete means every requested step finished successfully.
	StatusComplete Status = "complete"
	// StatusFailed means a step failed permanently or the document was poisoned.
	StatusFailed Status = "failed"
	// StatusCancelled means processing was stopped by an external cancel.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further pipeline work will happen for this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

// File is a source file submitted as part of a document upload.
type File struct {
	Name    string
	Content []byte
}

// Document is a logical unit of ingestion: a set of source files sharing an
// id and a tag collection within an index.
type Document struct {
	// Index is the namespace the document belongs to, in canonical form.
	Index string
	// ID is the client-supplied or generated identifier, unique within Index
	// and stable across retries.
	ID string
	// Tags propagate verbatim to every chunk derived from the document.
	Tags TagCollection
	// Files is the ordered list of source files.
	Files []File
}

// GeneratedFile records an artifact produced by a pipeline step from a
// source file, e.g. an extracted text partition or a serialized embedding.
type GeneratedFile struct {
	// Step is the name of the handler that produced the artifact.
	Step string `json:"step"`
	// Key is the artifact store key the content was written under.
	Key string `json:"artifact_key"`
	// ContentType describes the artifact content, e.g. "text/plain".
	ContentType string `json:"content_type"`
	// Part is the zero-based partition index within the parent file.
	Part int `json:"part"`
	// Size is the artifact size in bytes.
	Size int64 `json:"size"`
}

// FileRef describes one source file of a document together with the
// artifacts the pipeline derived from it. Descendants carry a back-pointer
// through their position under the FileRef, never a shared reference.
type FileRef struct {
	// ID identifies the file within the document. It is derived from the
	// file's position in the upload so that artifact keys stay deterministic.
	ID string `json:"id"`
	// Name is the original file name as uploaded.
	Name string `json:"name"`
	// Key is the artifact store key of the original content.
	Key string `json:"artifact_key"`
	// MIME is the detected content type.
	MIME string `json:"mime_type"`
	// Size is the original content size in bytes.
	Size int64 `json:"size"`
	// Generated lists artifacts produced from this file, in production order.
	Generated []GeneratedFile `json:"generated,omitempty"`
}

// GeneratedBy returns the artifacts the named step produced from this file,
// ordered by part index.
func (f *FileRef) GeneratedBy(step string) []GeneratedFile {
	var out []GeneratedFile
	for _, g := range f.Generated {
		if g.Step == step {
			out = append(out, g)
		}
	}
	return out
}

// AddGenerated records a derived artifact. An existing entry with the same
// step and part is replaced, which keeps redelivered handler invocations
// from accumulating duplicates.
func (f *FileRef) AddGenerated(g GeneratedFile) {
	for i, existing := range f.Generated {
		if existing.Step == g.Step && existing.Part == g.Part {
			f.Generated[i] = g
			return
		}
	}
	f.Generated = append(f.Generated, g)
}

// FailureReason is the structured error recorded when a document fails.
type FailureReason struct {
	// Step is the pipeline step that failed, if known.
	Step string `json:"step,omitempty"`
	// Message is the human-readable failure description.
	Message string `json:"message"`
}

// Chunk is the unit of retrieval: a text fragment with an embedding vector
// and the tags inherited from its document, plus the automatic
// __document_id, __file_id and __file_part tags.
type Chunk struct {
	ID         ID            `json:"id"`
	DocumentID string        `json:"document_id"`
	FileID     string        `json:"file_id"`
	Part       int           `json:"part"`
	Text       string        `json:"text"`
	Vector     []float32     `json:"vector"`
	Tags       TagCollection `json:"tags,omitempty"`
}

// ScoredChunk is a chunk paired with its relevance score for a query.
type ScoredChunk struct {
	Chunk *Chunk
	Score float32
}
