package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zudsniper/audio2text/internal/config"
)

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "a2t.log")
	log, closer, err := New("a2t", config.LogConfig{Level: "info", JSON: true, File: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("conversion finished", "chunks", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"@message":"conversion finished"`)
	assert.Contains(t, string(data), `"chunks":3`)
	assert.NotContains(t, string(data), "hidden")
}

func TestUnknownLevel(t *testing.T) {
	_, _, err := New("a2t", config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
