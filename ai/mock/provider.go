package mock

import "github.com/poiesic/memvault/ai"

// Provider implements ai.Provider over the mock services.
type Provider struct {
	embedder *Embedder
	answerer *AnswerGenerator
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider creates a provider over fresh mock services.
func NewProvider() *Provider {
	return &Provider{
		embedder: NewEmbedder(),
		answerer: NewAnswerGenerator(),
	}
}

// Embedder returns the mock embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// AnswerGenerator returns the mock answer service.
func (p *Provider) AnswerGenerator() ai.AnswerGenerator {
	return p.answerer
}

// MockEmbedder exposes the concrete embedder for assertions.
func (p *Provider) MockEmbedder() *Embedder {
	return p.embedder
}

// MockAnswerGenerator exposes the concrete answer generator for assertions.
func (p *Provider) MockAnswerGenerator() *AnswerGenerator {
	return p.answerer
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
