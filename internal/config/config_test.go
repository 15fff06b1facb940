package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GOOGLE_API_KEY", "LLM_API_KEY", "APP_PORT", "RAG_TOP_K", "LLM_PROVIDER", "DOCCHAT_SERVER_URL"} {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "googleai", cfg.LLM.Provider)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.CLI.ServerURL)
	assert.Equal(t, filepath.Join("data", "vector_index", "index.gob"), cfg.IndexPath())
	assert.Equal(t, time.Minute, cfg.LLM.RequestTimeout())
	assert.Equal(t, 5*time.Minute, cfg.LLM.StreamTimeout())
	assert.Equal(t, int64(20<<20), cfg.Upload.MaxFileBytes())
}

func TestLoadFile_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9191

[llm]
provider = "openai"
api_key = "from-file"

[index]
dir = "/tmp/idx"
compress = true
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.App.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
	assert.Equal(t, filepath.Join("/tmp/idx", "index.gob.gz"), cfg.IndexPath())
	assert.Equal(t, "http://127.0.0.1:9191", cfg.CLI.ServerURL)
}

func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rag:
  top_k: 5
upload:
  max_file_size_mb: 2
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, int64(2<<20), cfg.Upload.MaxFileBytes())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm]\napi_key = \"from-file\"\n"), 0o644))

	t.Setenv("GOOGLE_API_KEY", "google-key")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.LLM.APIKey)

	t.Setenv("LLM_API_KEY", "llm-key")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "llm-key", cfg.LLM.APIKey)
}

func TestLoadFile_RepairsInvalidRAGSettings(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[rag]\nchunk_size = 100\nchunk_overlap = 150\ntop_k = 0\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
}
