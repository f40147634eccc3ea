package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ecodesk", cfg.Name)
	assert.Equal(t, 3, cfg.Store.TopK)
	assert.False(t, cfg.Guard.EchoReason)
}

func TestLoad_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecodesk.yaml")
	data := []byte(`
llm:
  model: gemini-2.0-pro
  generate_timeout: 90s
store:
  top_k: 5
guard:
  echo_reason: true
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-pro", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Store.TopK)
	assert.True(t, cfg.Guard.EchoReason)
	assert.Equal(t, 90*time.Second, cfg.GetGenerateTimeout())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ecodesk.yaml")

	cfg := DefaultConfig()
	cfg.Store.TopK = 5
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Store.TopK)
	assert.Equal(t, cfg.LLM.Model, loaded.LLM.Model)
	assert.Equal(t, cfg.Logging.Dir, loaded.Logging.Dir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY fills both LLM and embedding keys", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, "gem-key", cfg.Embedding.GenAIAPIKey)
	})

	t.Run("GENAI_EMBED_API_KEY does not clobber explicit provider", func(t *testing.T) {
		t.Setenv("GENAI_EMBED_API_KEY", "embed-key")

		cfg := DefaultConfig()
		cfg.Embedding.Provider = "ollama"
		cfg.applyEnvOverrides()

		assert.Equal(t, "embed-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "ollama", cfg.Embedding.Provider)
	})

	t.Run("pushover credentials", func(t *testing.T) {
		t.Setenv("PUSHOVER_TOKEN", "tok")
		t.Setenv("PUSHOVER_USER", "usr")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "tok", cfg.Notify.PushoverToken)
		assert.Equal(t, "usr", cfg.Notify.PushoverUser)
	})

	t.Run("ECODESK_DB overrides database path", func(t *testing.T) {
		t.Setenv("ECODESK_DB", "/tmp/alt.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/alt.db", cfg.Store.DatabasePath)
	})
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 60*time.Second, cfg.GetGenerateTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetClassifyTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetGuardTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetNotifyTimeout())

	cfg.Guard.Timeout = "-5s"
	assert.Equal(t, 15*time.Second, cfg.GetGuardTimeout())
}
