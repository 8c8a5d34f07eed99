// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/config"
)

// New returns a logger writing to stderr and, when cfg.File is set, also
// appending to that file. The returned closer releases the file.
func New(name string, cfg config.LogConfig) (hclog.Logger, io.Closer, error) {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		return nil, nil, errors.Errorf("unknown log level %q", cfg.Level)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           level,
		Output:          out,
		JSONFormat:      cfg.JSON,
		Color:           hclog.ColorOff,
		IncludeLocation: level <= hclog.Debug,
	})
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
