package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/memvault/ai"
)

// AnswerGenerator is a test double for ai.AnswerGenerator.
type AnswerGenerator struct {
	// GenerateAnswerFunc is called by GenerateAnswer if set.
	// If nil, a canned answer naming the passage count is produced.
	GenerateAnswerFunc func(ctx context.Context, question string, passages []ai.Passage) (string, error)

	mu        sync.Mutex
	callCount int

	// LastQuestion and LastPassages record the most recent call for
	// assertions.
	LastQuestion string
	LastPassages []ai.Passage
}

// NewAnswerGenerator creates a mock answer generator.
// Returns the concrete type to allow test assertions.
func NewAnswerGenerator() *AnswerGenerator {
	return &AnswerGenerator{}
}

// GenerateAnswer produces a canned grounded answer.
func (m *AnswerGenerator) GenerateAnswer(ctx context.Context, question string, passages []ai.Passage) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.LastQuestion = question
	m.LastPassages = passages
	m.mu.Unlock()

	if m.GenerateAnswerFunc != nil {
		return m.GenerateAnswerFunc(ctx, question, passages)
	}
	return fmt.Sprintf("answer to %q from %d passages", question, len(passages)), nil
}

// CallCount returns the number of times GenerateAnswer was called.
func (m *AnswerGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
