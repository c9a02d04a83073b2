package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root docvault configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LLMConfig configures the OpenAI-compatible generative model endpoint used
// by the query analyzer, re-ranker, and answer synthesizer.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbeddingConfig selects the embedder implementation.
// Type "process" spawns WorkerCommand per batch; type "openai" calls the
// embeddings endpoint of an OpenAI-compatible API in-process.
type EmbeddingConfig struct {
	Type          string   `yaml:"type"`
	Model         string   `yaml:"model"`
	BaseURL       string   `yaml:"base_url"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	WorkerCommand []string `yaml:"worker_command"`
}

// ChunkingConfig sizes the text chunker. Overlap 0 (or unset) falls back
// to the default; use a negative value to disable overlap entirely.
type ChunkingConfig struct {
	Size         int `yaml:"size"`
	Overlap      int `yaml:"overlap"`
	MinPageChars int `yaml:"min_page_chars"`
}

type SearchConfig struct {
	TopK        int `yaml:"top_k"`
	MaxAttempts int `yaml:"max_attempts"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			Type:          "process",
			Model:         "all-MiniLM-L6-v2",
			BaseURL:       "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			WorkerCommand: []string{"python3", "embedder.py"},
		},
		Chunking: ChunkingConfig{
			Size:         1000,
			Overlap:      100,
			MinPageChars: 10,
		},
		Search: SearchConfig{
			TopK:        10,
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "docvault")
}

// Load reads the config file at path (YAML), fills missing fields with
// defaults, and applies DOCVAULT_* environment overrides. A missing file is
// not an error: defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		applyDefaults(&cfg)
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Token == "" {
		return Config{}, fmt.Errorf("missing required config: service token (set server.token or DOCVAULT_TOKEN)")
	}

	return cfg, nil
}

// applyDefaults re-fills fields the YAML file left at their zero value.
func applyDefaults(cfg *Config) {
	def := defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = def.LLM.APIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = def.Embedding.Type
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = def.Embedding.BaseURL
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = def.Embedding.APIKeyEnv
	}
	if len(cfg.Embedding.WorkerCommand) == 0 {
		cfg.Embedding.WorkerCommand = def.Embedding.WorkerCommand
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = def.Chunking.Size
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = def.Chunking.Overlap
	}
	if cfg.Chunking.MinPageChars == 0 {
		cfg.Chunking.MinPageChars = def.Chunking.MinPageChars
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Search.MaxAttempts == 0 {
		cfg.Search.MaxAttempts = def.Search.MaxAttempts
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCVAULT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCVAULT_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("DOCVAULT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DOCVAULT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DOCVAULT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DOCVAULT_EMBEDDING_TYPE"); v != "" {
		cfg.Embedding.Type = v
	}
	if v := os.Getenv("DOCVAULT_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("DOCVAULT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
