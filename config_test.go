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


package memvault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	configData := `
data_dir: /var/lib/memvault
listen: ":9000"
workers: 8
max_attempts: 5
visibility: 3m

queue:
  backend: redis
  redis_url: redis://localhost:6379/0

artifacts:
  backend: disk

index:
  backend: pgvector
  conn_string: postgres://localhost:5432/memvault
  vector_dim: 768

ai:
  embedding_host: http://embedder:11434/v1
  embedding_model: nomic-embed-text
  embed_rate_limit: 2.5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configData), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/memvault", config.DataDir)
	assert.Equal(t, ":9000", config.Listen)
	assert.Equal(t, 8, config.Workers)
	assert.Equal(t, 5, config.MaxAttempts)
	assert.Equal(t, 3*time.Minute, time.Duration(config.Visibility))
	assert.Equal(t, BackendRedis, config.Queue.Backend)
	assert.Equal(t, "redis://localhost:6379/0", config.Queue.RedisURL)
	assert.Equal(t, BackendDisk, config.Artifacts.Backend)
	assert.Equal(t, BackendPgVector, config.Index.Backend)
	assert.Equal(t, 768, config.Index.VectorDim)
	assert.Equal(t, "http://embedder:11434/v1", config.AI.EmbeddingHost)
	assert.Equal(t, 2.5, config.AI.EmbedRateLimit)

	// Chat host defaults to the embedding host when unset.
	assert.Equal(t, "http://embedder:11434/v1", config.AI.ChatHost)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memvault-data", config.DataDir)
	assert.Equal(t, ":8600", config.Listen)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, BackendDisk, config.Queue.Backend)
	assert.Equal(t, BackendDisk, config.Artifacts.Backend)
	assert.Equal(t, BackendBadger, config.Index.Backend)
	assert.Equal(t, "embeddinggemma", config.AI.EmbeddingModel)
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	config.Queue.Backend = "carrier-pigeon"
	require.ErrorContains(t, config.Validate(), "unknown backend")

	config = DefaultConfig()
	config.Queue.Backend = BackendRedis
	require.ErrorContains(t, config.Validate(), "redis_url")

	config = DefaultConfig()
	config.Index.Backend = BackendPgVector
	require.ErrorContains(t, config.Validate(), "conn_string")

	config = DefaultConfig()
	config.Workers = -1
	require.ErrorContains(t, config.Validate(), "workers")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
