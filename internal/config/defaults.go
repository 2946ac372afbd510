package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ragdocs/data/db/ragdocs.db"
	}
	if cfg.Storage.BlobBackend == "" {
		cfg.Storage.BlobBackend = "disk"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "/usr/local/var/ragdocs/data/blobs"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "/usr/local/var/ragdocs/data/models/bge-small-en.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.IndexPath == "" {
		cfg.Vector.IndexPath = "/usr/local/var/ragdocs/data/indices/vectors.bin"
	}
	if cfg.Vector.URL == "" {
		cfg.Vector.URL = "http://localhost:6333"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "docs"
	}
	if cfg.Vector.TopK == 0 {
		cfg.Vector.TopK = 5
	}
	if cfg.Vector.TitleSample == 0 {
		cfg.Vector.TitleSample = 2
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	// ChunkOverlap defaults to zero.
	if cfg.Enrichment.Backend == "" {
		cfg.Enrichment.Backend = "memory"
	}
	if cfg.Enrichment.Workers == 0 {
		cfg.Enrichment.Workers = 2
	}
	if cfg.Enrichment.QueueSize == 0 {
		cfg.Enrichment.QueueSize = 100
	}
	if cfg.Enrichment.RedisKey == "" {
		cfg.Enrichment.RedisKey = "ragdocs:enrich:titles"
	}
	if cfg.Keyword.IndexPath == "" {
		cfg.Keyword.IndexPath = "/usr/local/var/ragdocs/data/indices/bleve"
	}
}
