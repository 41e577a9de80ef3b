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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or "3m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Backend selector values. Each subsystem picks its backend independently,
// so a deployment can pair an on-disk queue with a pgvector index.
const (
	BackendMemory   = "memory"
	BackendDisk     = "disk"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendPgVector = "pgvector"
)

// Config is the service configuration, loadable from a YAML file.
type Config struct {
	// DataDir is the root directory for disk-backed subsystems.
	DataDir string `yaml:"data_dir"`

	// Listen is the HTTP listen address of the server command.
	Listen string `yaml:"listen"`

	// Workers is the orchestrator worker pool size.
	Workers int `yaml:"workers"`

	// MaxAttempts is the per-message failure budget before poisoning.
	MaxAttempts int `yaml:"max_attempts"`

	// Visibility is the queue lease duration.
	Visibility Duration `yaml:"visibility"`

	Queue struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"queue"`

	Artifacts struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"artifacts"`

	Index struct {
		Backend    string `yaml:"backend"`
		ConnString string `yaml:"conn_string"`
		TableName  string `yaml:"table_name"`
		VectorDim  int    `yaml:"vector_dim"`
	} `yaml:"index"`

	AI struct {
		EmbeddingHost  string  `yaml:"embedding_host"`
		ChatHost       string  `yaml:"chat_host"`
		EmbeddingModel string  `yaml:"embedding_model"`
		ChatModel      string  `yaml:"chat_model"`
		EmbedRateLimit float64 `yaml:"embed_rate_limit"`
	} `yaml:"ai"`
}

// LoadConfig reads a YAML config file and fills in defaults for unset
// values. An empty path returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	config.applyDefaults()
	return config, config.Validate()
}

// DefaultConfig returns the all-local default configuration: disk queue and
// artifacts, badger index, local embedding server.
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "memvault-data"
	}
	if c.Listen == "" {
		c.Listen = ":8600"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendDisk
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = BackendDisk
	}
	if c.Index.Backend == "" {
		c.Index.Backend = BackendBadger
	}
	if c.AI.EmbeddingHost == "" {
		c.AI.EmbeddingHost = "http://localhost:11434/v1"
	}
	if c.AI.ChatHost == "" {
		c.AI.ChatHost = c.AI.EmbeddingHost
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = "embeddinggemma"
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = "qwen2.5:3b"
	}
}

// Validate checks backend selections and their required parameters.
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case BackendMemory, BackendDisk:
	case BackendRedis:
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("queue: redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("queue: unknown backend %q", c.Queue.Backend)
	}

	switch c.Artifacts.Backend {
	case BackendMemory, BackendDisk:
	case BackendRedis:
		if c.Artifacts.RedisURL == "" {
			return fmt.Errorf("artifacts: redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("artifacts: unknown backend %q", c.Artifacts.Backend)
	}

	switch c.Index.Backend {
	case BackendMemory, BackendBadger:
	case BackendPgVector:
		if c.Index.ConnString == "" {
			return fmt.Errorf("index: pgvector backend requires conn_string")
		}
	default:
		return fmt.Errorf("index: unknown backend %q", c.Index.Backend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

func (c *Config) queueDir() string    { return filepath.Join(c.DataDir, "queue") }
func (c *Config) artifactDir() string { return filepath.Join(c.DataDir, "artifacts") }
func (c *Config) indexDir() string    { return filepath.Join(c.DataDir, "index") }
