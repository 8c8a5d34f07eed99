package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zudsniper/audio2text/internal/config"
)

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	cfg := config.Default()
	cfg.Language = "de-DE"
	cfg.Workers = 4

	f := &flags{language: "en-US", workers: 0, chunk: 30 * time.Second, backend: "local"}
	f.apply(cfg, map[string]bool{"chunk": true, "backend": true})

	assert.Equal(t, "de-DE", cfg.Language, "unset flag keeps the config value")
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.ChunkDuration)
	assert.Equal(t, config.BackendLocal, cfg.Backend)
}

func TestRecognizerFactory(t *testing.T) {
	for _, backend := range []string{config.BackendGoogle, config.BackendOpenAI, config.BackendCloudflare, config.BackendLocal} {
		cfg := config.Default()
		cfg.Backend = backend
		factory, err := recognizerFactory(cfg)
		require.NoError(t, err, backend)
		assert.NotNil(t, factory(), backend)
	}

	cfg := config.Default()
	cfg.Backend = "fax"
	_, err := recognizerFactory(cfg)
	assert.Error(t, err)
}
