package config

// Default two-stage retrieval parameters. Candidates is the cheap vector
// stage fan-out; selected is how many survive the expensive rerank stage.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 300
	DefaultNCandidates  = 12
	DefaultNSelected    = 5
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/kotae.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/vectors.bin"
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = "./data/uploads"
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.QdrantURL == "" {
		cfg.Vector.QdrantURL = "http://localhost:6333"
	}
	if cfg.Vector.QdrantCollection == "" {
		cfg.Vector.QdrantCollection = "documents"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Rerank.TimeoutSeconds == 0 {
		cfg.Rerank.TimeoutSeconds = 15
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "llama3.2"
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = DefaultChunkSize
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Retrieval.NCandidates == 0 {
		cfg.Retrieval.NCandidates = DefaultNCandidates
	}
	if cfg.Retrieval.NSelected == 0 {
		cfg.Retrieval.NSelected = DefaultNSelected
	}
	if cfg.Retrieval.SimilarityMetric == "" {
		cfg.Retrieval.SimilarityMetric = "cosine"
	}
	if cfg.Retrieval.StageTimeoutSeconds == 0 {
		cfg.Retrieval.StageTimeoutSeconds = 30
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".html", ".pdf", ".docx", ".pptx", ".xlsx"}
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 64 << 20
	}
}
