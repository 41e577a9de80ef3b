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


package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/memvault/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const answerSystemPrompt = `You answer questions using only the numbered source passages provided by the user.
Rules:
- Base every statement on the passages. Do not use outside knowledge.
- When a statement comes from a passage, cite it inline as [N].
- If the passages do not contain the answer, say so plainly instead of guessing.
- Keep the answer concise.`

// AnswerGenerator implements ai.AnswerGenerator using OpenAI-compatible
// chat APIs.
type AnswerGenerator struct {
	client llms.Model
	logger *slog.Logger
}

// newAnswerGenerator is the internal constructor returning the concrete type.
func newAnswerGenerator(config *ai.Config) (*AnswerGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken("none"),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &AnswerGenerator{
		client: client,
		logger: slog.Default().With("component", "openai-answerer"),
	}, nil
}

// NewAnswerGenerator creates an answer generator from the configuration.
//
// Returns ai.AnswerGenerator interface to enforce abstraction.
func NewAnswerGenerator(config *ai.Config) (ai.AnswerGenerator, error) {
	return newAnswerGenerator(config)
}

// GenerateAnswer answers the question grounded on the passages.
func (g *AnswerGenerator) GenerateAnswer(ctx context.Context, question string, passages []ai.Passage) (string, error) {
	g.logger.Debug("generating answer", "passages", len(passages), "questionLength", len(question))

	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, p.Source, p.Text)
	}
	fmt.Fprintf(&sb, "Question: %s", question)

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(answerSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(sb.String())},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		g.logger.Error("failed to generate answer", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}
