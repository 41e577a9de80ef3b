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


package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to an inner Embedder. Batch calls
// count as one request regardless of size; hosted embedding APIs meter by
// request, not by document.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

var _ Embedder = (*RateLimitedEmbedder)(nil)

// NewRateLimitedEmbedder wraps inner, allowing perSecond calls with a
// burst of one. A non-positive perSecond returns inner unchanged.
func NewRateLimitedEmbedder(inner Embedder, perSecond float64) Embedder {
	if perSecond <= 0 {
		return inner
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (e *RateLimitedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.EmbedText(ctx, text)
}

func (e *RateLimitedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.EmbedTexts(ctx, texts)
}
