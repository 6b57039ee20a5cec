// Package config provides configuration loading for memoryd.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// ErrInvalidConfig indicates a configuration value that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// EmbedderConfig identifies the embedding model whose vectors the engine
// stores. The engine never computes embeddings; the identity only determines
// collection compatibility.
type EmbedderConfig struct {
	// Name of the embedding model, e.g. "text-embedding-3-small".
	Name string `koanf:"name"`

	// Size is the vector dimensionality produced by the model.
	Size uint64 `koanf:"size"`
}

// QdrantConfig holds connection parameters for the backing vector database.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int `koanf:"port"`

	// RESTPort is the Qdrant HTTP port, used only for snapshot downloads.
	// Default: 6333
	RESTPort int `koanf:"rest_port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// APIKey is the optional API key for authentication.
	APIKey string `koanf:"api_key"`

	// RequestTimeout is the per-call timeout for backend requests.
	// Default: 30 seconds
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (large batch upserts)
	MaxMessageSize int `koanf:"max_message_size"`

	// MaxRetries is the retry budget for transient backend failures.
	// Default: 3
	MaxRetries int `koanf:"max_retries"`
}

// SnapshotConfig controls the best-effort export taken before a destructive
// collection migration.
type SnapshotConfig struct {
	// Persist enables a snapshot dump before a collection is rebuilt.
	Persist bool `koanf:"persist"`

	// Folder is the local directory snapshot dumps are written to.
	// Default: "snapshots"
	Folder string `koanf:"folder"`
}

// Config is the root memoryd configuration.
type Config struct {
	Embedder  EmbedderConfig `koanf:"embedder"`
	Qdrant    QdrantConfig   `koanf:"qdrant"`
	Snapshots SnapshotConfig `koanf:"snapshots"`
	Logging   logging.Config `koanf:"logging"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Qdrant.RESTPort == 0 {
		c.Qdrant.RESTPort = 6333
	}
	if c.Qdrant.RequestTimeout == 0 {
		c.Qdrant.RequestTimeout = 30 * time.Second
	}
	if c.Qdrant.MaxMessageSize == 0 {
		c.Qdrant.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.Qdrant.MaxRetries == 0 {
		c.Qdrant.MaxRetries = 3
	}
	if c.Snapshots.Folder == "" {
		c.Snapshots.Folder = "snapshots"
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedder.Name == "" {
		return fmt.Errorf("%w: embedder name required", ErrInvalidConfig)
	}
	if c.Embedder.Size == 0 {
		return fmt.Errorf("%w: embedder size required", ErrInvalidConfig)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, c.Qdrant.Port)
	}
	if c.Qdrant.RESTPort <= 0 || c.Qdrant.RESTPort > 65535 {
		return fmt.Errorf("%w: invalid qdrant rest port: %d", ErrInvalidConfig, c.Qdrant.RESTPort)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
