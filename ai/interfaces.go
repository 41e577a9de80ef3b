package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in a batch.
	// The returned slice is in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Passage is a retrieved text fragment handed to the answer generator as
// grounding material.
type Passage struct {
	// Source identifies where the passage came from, shown to the model
	// so it can cite it. Typically "file.pdf (part 3)".
	Source string

	// Text is the passage content.
	Text string
}

// AnswerGenerator produces a natural-language answer to a question,
// grounded strictly on the supplied passages.
// Implementations must be thread-safe for concurrent use.
type AnswerGenerator interface {
	// GenerateAnswer answers the question from the passages. The model is
	// instructed to refuse rather than invent when the passages do not
	// contain the answer.
	GenerateAnswer(ctx context.Context, question string, passages []Passage) (string, error)
}

// Provider aggregates the AI services for convenient initialization and
// lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// AnswerGenerator returns the grounded answer service.
	AnswerGenerator() AnswerGenerator

	// Close releases resources held by the provider and its services.
	Close() error
}
