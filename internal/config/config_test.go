package config

import (
	"testing"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, 0.65, cfg.Retrieval.Threshold)
	assert.Equal(t, 1, cfg.Retrieval.TopK)
	assert.Equal(t, 30*time.Second, cfg.Retrieval.QueryTimeout)
	assert.Equal(t, "hashing", cfg.Encoder.Provider)
	assert.Equal(t, "ngram-3", cfg.Encoder.Model)
	assert.Equal(t, "ollama", cfg.Fallback.Provider)
	assert.Equal(t, "file", cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.8")
	t.Setenv("TOP_K", "3")
	t.Setenv("QUERY_TIMEOUT", "2s")
	t.Setenv("EMBED_PROVIDER", "ollama")
	t.Setenv("WATCH_FAQ_FILE", "false")

	cfg := FromEnv()

	assert.Equal(t, 0.8, cfg.Retrieval.Threshold)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.QueryTimeout)
	assert.Equal(t, "nomic-embed-text", cfg.Encoder.Model)
	assert.False(t, cfg.App.WatchFAQ)
}

func TestFromEnv_UnparsableFallsBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "high")
	t.Setenv("TOP_K", "many")

	cfg := FromEnv()
	assert.Equal(t, 0.65, cfg.Retrieval.Threshold)
	assert.Equal(t, 1, cfg.Retrieval.TopK)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.2 }, "Threshold"},
		{"negative threshold", func(c *Config) { c.Retrieval.Threshold = -0.1 }, "Threshold"},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }, "TopK"},
		{"unknown encoder", func(c *Config) { c.Encoder.Provider = "magic" }, "Provider"},
		{"gemini without key", func(c *Config) { c.Fallback.Provider = "gemini" }, "APIKey"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "Backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, entities.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_GeminiWithKey(t *testing.T) {
	cfg := FromEnv()
	cfg.Fallback.Provider = "gemini"
	cfg.Fallback.APIKey = "test-key"
	cfg.Fallback.Model = "gemini-2.5-flash"

	assert.NoError(t, cfg.Validate())
}

func TestIsProduction(t *testing.T) {
	cfg := FromEnv()
	assert.False(t, cfg.IsProduction())
	cfg.App.Environment = "production"
	assert.True(t, cfg.IsProduction())
}

func TestFromEnv_GeminiDefaultModel(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "k")

	cfg := FromEnv()
	assert.Equal(t, "gemini-2.5-flash", cfg.Fallback.Model)
	assert.NoError(t, cfg.Validate())
}
