package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig(t)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Discovery.Depth)
	assert.Equal(t, 1000, cfg.Discovery.MaxURLs)
	assert.Equal(t, 50, cfg.Discovery.Phase1PageCap)
	assert.Equal(t, 10, cfg.Selection.K)
	assert.Equal(t, 10, cfg.Extraction.Concurrency)
	assert.Equal(t, 10000, cfg.Extraction.MaxChars)
	assert.Equal(t, 5000, cfg.Aggregation.PerPageChars)
	assert.Equal(t, 400000, cfg.Aggregation.MaxPromptChars)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, 3, cfg.Batch.ConsecutiveFailureThreshold)
	assert.Equal(t, 5, cfg.Batch.ProgressEvery)
	assert.Equal(t, 120, cfg.Job.TimeoutSecs)
	assert.Equal(t, 30, cfg.Job.PhaseSoftBudgetSecs)
	assert.True(t, cfg.LLM.Prewarm)
	assert.Equal(t, int64(2*1024*1024), cfg.HTTP.MaxBytes)
	assert.False(t, cfg.HTTP.StrictTLS)
	assert.Contains(t, cfg.Selection.HeuristicPriorities, "/contact")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Store.Driver = "oracle"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Embedding.Dimension = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Selection.K = 0
	assert.Error(t, bad.Validate())
}

func TestInputQueueCap(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig(t)
	assert.Equal(t, 6, cfg.InputQueueCap())

	cfg.Batch.InputQueueSize = 17
	assert.Equal(t, 17, cfg.InputQueueCap())
}
