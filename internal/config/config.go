// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database, vector snapshot, and uploads.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
	UploadsDir      string `yaml:"uploads_dir"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// IndexType is "memory" (persistent in-process index) or "qdrant".
	IndexType        string `yaml:"index_type"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKeyEnv  string `yaml:"qdrant_api_key_env"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// EmbeddingConfig holds settings for the embedding service client.
type EmbeddingConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint, including Ollama)
	// or "mock" for development without a model service.
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	CacheSize      int    `yaml:"cache_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the embedding call timeout.
func (c *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RerankConfig holds settings for the cross-encoder reranking service.
// An empty BaseURL selects the built-in lexical reranker.
type RerankConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the rerank call timeout.
func (c *RerankConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GenerationConfig holds settings for the text-generation service client.
type GenerationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the generation call timeout.
func (c *GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetrievalConfig holds chunking and two-stage retrieval settings. It is
// passed explicitly into the chunker and retrieval engine constructors.
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	// NCandidates is the first-stage (vector search) fan-out.
	NCandidates int `yaml:"n_candidates"`
	// NSelected is how many reranked passages reach the context.
	NSelected int `yaml:"n_selected"`
	// SimilarityMetric is "cosine" or "dot", fixed per deployment.
	SimilarityMetric string `yaml:"similarity_metric"`
	// StageTimeoutSeconds bounds each pipeline stage; 0 disables the bound.
	StageTimeoutSeconds int `yaml:"stage_timeout_seconds"`
}

// StageTimeout returns the per-stage timeout.
func (c *RetrievalConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// IngestConfig holds upload and inbox ingestion settings.
type IngestConfig struct {
	// Extensions restricts which file types may be ingested.
	Extensions []string `yaml:"extensions"`
	// InboxDir, when set, is watched for files dropped at <inbox>/<tenant>/<file>.
	InboxDir string `yaml:"inbox_dir"`
	// MaxUploadBytes caps the size of one uploaded document.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.UploadsDir = expandPath(cfg.Storage.UploadsDir, configDir)
	if cfg.Ingest.InboxDir != "" {
		cfg.Ingest.InboxDir = expandPath(cfg.Ingest.InboxDir, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
