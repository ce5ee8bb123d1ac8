package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Dataset      DatasetConfig  `yaml:"dataset"`
	RAG          RAGConfig      `yaml:"rag"`
	Store        StoreConfig    `yaml:"store"`
	Database     DatabaseConfig `yaml:"database"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	History      HistoryConfig  `yaml:"history"`
	Log          LogConfig      `yaml:"log"`
}

type DatasetConfig struct {
	Path            string   `yaml:"path"`
	ProductColumn   string   `yaml:"product_column" validate:"required"`
	NarrativeColumn string   `yaml:"narrative_column" validate:"required"`
	IDColumn        string   `yaml:"id_column"`
	Products        []string `yaml:"products" validate:"required,min=1,dive,required"`
	SampleSize      int      `yaml:"sample_size" validate:"gte=0"`
	Seed            int64    `yaml:"seed"`
	CleanedOutput   string   `yaml:"cleaned_output"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int    `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	ChunkStrategy string `yaml:"chunk_strategy" validate:"oneof=window recursive"`
	BatchSize     int    `yaml:"batch_size" validate:"gt=0"`
	MaxChunks     int    `yaml:"max_chunks" validate:"gte=0"`
	TopK          int    `yaml:"top_k" validate:"gt=0"`
	ContextWidth  int    `yaml:"context_width" validate:"gt=0"`
	MaxNewTokens  int    `yaml:"max_new_tokens" validate:"gt=0"`
	SourcesShown  int    `yaml:"sources_shown" validate:"gte=0"`
	SourceWidth   int    `yaml:"source_width" validate:"gt=0"`
}

type StoreConfig struct {
	Backend       string       `yaml:"backend" validate:"oneof=chromem pgvector qdrant"`
	Path          string       `yaml:"path"`
	Collection    string       `yaml:"collection" validate:"required"`
	Metric        string       `yaml:"metric" validate:"oneof=cosine l2"`
	Compress      bool         `yaml:"compress"`
	EncryptionKey string       `yaml:"encryption_key" validate:"omitempty,len=32"`
	Qdrant        QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model" validate:"required"`
	Key      string `yaml:"key"`
}

// HistoryConfig locates the SQLite ledger of ingests and answers. An empty
// path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
	defaultBatchSize    = 1000
	defaultTopK         = 5
	defaultWidth        = 500
	defaultMaxNewTokens = 300
	defaultSourcesShown = 2
)

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment (after loading .env if present), fills defaults and validates.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path:            "./data/complaints.csv",
			ProductColumn:   "Product",
			NarrativeColumn: "Consumer complaint narrative",
			IDColumn:        "Complaint ID",
			Products: []string{
				"Credit card",
				"Personal loan",
				"Buy Now, Pay Later (BNPL)",
				"Savings account",
				"Money transfers",
			},
			Seed: 42,
		},
		RAG: RAGConfig{
			ChunkSize:     defaultChunkSize,
			ChunkOverlap:  defaultChunkOverlap,
			ChunkStrategy: "window",
			BatchSize:     defaultBatchSize,
			TopK:          defaultTopK,
			ContextWidth:  defaultWidth,
			MaxNewTokens:  defaultMaxNewTokens,
			SourcesShown:  defaultSourcesShown,
			SourceWidth:   defaultWidth,
		},
		Store: StoreConfig{
			Backend:    "chromem",
			Path:       "./vector_store",
			Collection: "complaints_full",
			Metric:     "cosine",
			Qdrant:     QdrantConfig{Host: "localhost", Port: 6334},
		},
		EmbedLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "all-minilm",
		},
		InferenceLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "mistral:7b-instruct",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// applyDefaults restores zero values a partial YAML file may have written.
func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.ChunkStrategy == "" {
		cfg.RAG.ChunkStrategy = "window"
	}
	if cfg.RAG.BatchSize == 0 {
		cfg.RAG.BatchSize = defaultBatchSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.ContextWidth == 0 {
		cfg.RAG.ContextWidth = defaultWidth
	}
	if cfg.RAG.SourceWidth == 0 {
		cfg.RAG.SourceWidth = defaultWidth
	}
	if cfg.RAG.MaxNewTokens == 0 {
		cfg.RAG.MaxNewTokens = defaultMaxNewTokens
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "chromem"
	}
	if cfg.Store.Metric == "" {
		cfg.Store.Metric = "cosine"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = "ollama"
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == "chromem" && c.Store.Path == "" {
		return fmt.Errorf("invalid config: store.path is required for the chromem backend")
	}
	if c.Store.Backend == "pgvector" && c.Database.DSN == "" {
		return fmt.Errorf("invalid config: database.dsn is required for the pgvector backend")
	}
	return nil
}
