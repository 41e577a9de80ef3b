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


package pipeline

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: exponential doubling from Base, capped at
// Cap, with ±Jitter applied as a fraction of the delay.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// DefaultBackoff is the pipeline retry schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 5 * time.Minute, Jitter: 0.2}
}

// Delay returns the delay before re-delivering a message on its given
// attempt (zero-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt && d < b.Cap; i++ {
		d *= 2
	}
	if d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		// Spread in [1-jitter, 1+jitter).
		factor := 1 + b.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * factor)
	}
	return d
}
