package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docchat/internal/chunker"
)

type Config struct {
	App    AppConfig    `toml:"app" yaml:"app"`
	LLM    LLMConfig    `toml:"llm" yaml:"llm"`
	RAG    RAGConfig    `toml:"rag" yaml:"rag"`
	Index  IndexConfig  `toml:"index" yaml:"index"`
	Upload UploadConfig `toml:"upload" yaml:"upload"`
	Auth   AuthConfig   `toml:"auth" yaml:"auth"`
	CLI    CLIConfig    `toml:"cli" yaml:"cli"`
}

type AppConfig struct {
	Name      string `toml:"name" yaml:"name"`
	Env       string `toml:"env" yaml:"env"`
	Host      string `toml:"host" yaml:"host"`
	Port      int    `toml:"port" yaml:"port"`
	GinMode   string `toml:"gin_mode" yaml:"gin_mode"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
}

// LLMConfig selects the hosted provider used for both embeddings and generation.
type LLMConfig struct {
	Provider              string `toml:"provider" yaml:"provider"`
	BaseURL               string `toml:"base_url" yaml:"base_url"`
	APIKey                string `toml:"api_key" yaml:"api_key"`
	Model                 string `toml:"model" yaml:"model"`
	EmbeddingModel        string `toml:"embedding_model" yaml:"embedding_model"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	StreamTimeoutSeconds  int    `toml:"stream_timeout_seconds" yaml:"stream_timeout_seconds"`
	EmbeddingBatchSize    int    `toml:"embedding_batch_size" yaml:"embedding_batch_size"`
	EmbeddingRetries      int    `toml:"embedding_retries" yaml:"embedding_retries"`
}

type RAGConfig struct {
	ChunkSize    int `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap" yaml:"chunk_overlap"`
	TopK         int `toml:"top_k" yaml:"top_k"`
}

type IndexConfig struct {
	Dir           string `toml:"dir" yaml:"dir"`
	Compress      bool   `toml:"compress" yaml:"compress"`
	EncryptionKey string `toml:"encryption_key" yaml:"encryption_key"`
}

type UploadConfig struct {
	Dir           string `toml:"dir" yaml:"dir"`
	MaxFileSizeMB int    `toml:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxFiles      int    `toml:"max_files" yaml:"max_files"`
}

// AuthConfig enables bearer token auth on the API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWTExpireMinute int    `toml:"jwt_expire_minute" yaml:"jwt_expire_minute"`
}

type CLIConfig struct {
	ServerURL             string `toml:"server_url" yaml:"server_url"`
	ServerBin             string `toml:"server_bin" yaml:"server_bin"`
	StartupTimeoutSeconds int    `toml:"startup_timeout_seconds" yaml:"startup_timeout_seconds"`
}

// Load reads .env (if any), the config file named by CONFIG_FILE and finally
// the environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(getEnv("CONFIG_FILE", "configs/config.toml"))
}

// LoadFile is Load without the .env step. A missing file yields the defaults.
func LoadFile(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := decodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(raw, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// IndexPath is the single file the vector index is exported to.
func (c *Config) IndexPath() string {
	name := "index.gob"
	if c.Index.Compress {
		name += ".gz"
	}
	return filepath.Join(c.Index.Dir, name)
}

func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c LLMConfig) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

// MaxFileBytes is the per-file upload limit. Zero means unlimited.
func (c UploadConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:      "docchat",
			Env:       "dev",
			Host:      "127.0.0.1",
			Port:      8080,
			GinMode:   "release",
			LogLevel:  "info",
			LogFormat: "console",
		},
		LLM: LLMConfig{
			Provider:              "googleai",
			Model:                 "gemini-1.5-pro-latest",
			EmbeddingModel:        "text-embedding-004",
			RequestTimeoutSeconds: 60,
			StreamTimeoutSeconds:  300,
			EmbeddingBatchSize:    100,
			EmbeddingRetries:      2,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         3,
		},
		Index: IndexConfig{
			Dir: "data/vector_index",
		},
		Upload: UploadConfig{
			Dir:           filepath.Join(os.TempDir(), "docchat-uploads"),
			MaxFileSizeMB: 20,
			MaxFiles:      10,
		},
		Auth: AuthConfig{
			JWTExpireMinute: 60,
		},
		CLI: CLIConfig{
			ServerBin:             "docchat-server",
			StartupTimeoutSeconds: 15,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnv("LOG_FORMAT", cfg.App.LogFormat)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	// GOOGLE_API_KEY is what the Gemini tooling reads; LLM_API_KEY wins when both are set.
	cfg.LLM.APIKey = getEnv("GOOGLE_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnv("LLM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.RequestTimeoutSeconds = getEnvAsInt("LLM_REQUEST_TIMEOUT_SECONDS", cfg.LLM.RequestTimeoutSeconds)
	cfg.LLM.StreamTimeoutSeconds = getEnvAsInt("LLM_STREAM_TIMEOUT_SECONDS", cfg.LLM.StreamTimeoutSeconds)
	cfg.LLM.EmbeddingBatchSize = getEnvAsInt("LLM_EMBEDDING_BATCH_SIZE", cfg.LLM.EmbeddingBatchSize)
	cfg.LLM.EmbeddingRetries = getEnvAsInt("LLM_EMBEDDING_RETRIES", cfg.LLM.EmbeddingRetries)

	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.TopK = getEnvAsInt("RAG_TOP_K", cfg.RAG.TopK)

	cfg.Index.Dir = getEnv("INDEX_DIR", cfg.Index.Dir)
	cfg.Index.EncryptionKey = getEnv("INDEX_ENCRYPTION_KEY", cfg.Index.EncryptionKey)

	cfg.Upload.Dir = getEnv("UPLOAD_DIR", cfg.Upload.Dir)
	cfg.Upload.MaxFileSizeMB = getEnvAsInt("UPLOAD_MAX_FILE_SIZE_MB", cfg.Upload.MaxFileSizeMB)
	cfg.Upload.MaxFiles = getEnvAsInt("UPLOAD_MAX_FILES", cfg.Upload.MaxFiles)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.CLI.ServerURL = getEnv("DOCCHAT_SERVER_URL", cfg.CLI.ServerURL)
	cfg.CLI.ServerBin = getEnv("DOCCHAT_SERVER_BIN", cfg.CLI.ServerBin)
}

// applyDefaults repairs values a file or env var zeroed out.
func applyDefaults(cfg *Config) {
	def := defaultConfig()
	cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap = chunker.Normalize(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.LLM.EmbeddingBatchSize <= 0 {
		cfg.LLM.EmbeddingBatchSize = def.LLM.EmbeddingBatchSize
	}
	if cfg.LLM.RequestTimeoutSeconds <= 0 {
		cfg.LLM.RequestTimeoutSeconds = def.LLM.RequestTimeoutSeconds
	}
	if cfg.LLM.StreamTimeoutSeconds <= 0 {
		cfg.LLM.StreamTimeoutSeconds = def.LLM.StreamTimeoutSeconds
	}
	if cfg.CLI.ServerURL == "" {
		host := cfg.App.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		cfg.CLI.ServerURL = fmt.Sprintf("http://%s:%d", host, cfg.App.Port)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
