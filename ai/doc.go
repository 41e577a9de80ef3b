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


// Package ai provides abstractions for the AI services memvault depends
// on: text embedding and grounded answer generation.
//
// The core packages depend only on the interfaces defined here. Two
// implementation sub-packages are provided:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//     (Ollama, LocalAI, vLLM, the OpenAI platform itself)
//   - ai/mock: deterministic test doubles with no external dependencies
//
// Public constructors in ai/openai return interface types to keep callers
// decoupled from the concrete client. The mock constructors return
// concrete types so tests can inject behaviour and assert call counts.
package ai
