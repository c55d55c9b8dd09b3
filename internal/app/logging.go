package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
)

// NewLogger builds the process logger from the log settings. When a log
// file is configured the returned closer closes it; otherwise it is a no-op.
// Fallback is used when no file is configured.
func NewLogger(s config.LogSettings, fallback io.Writer) (*logging.Logger, io.Closer, error) {
	out := fallback
	var closer io.Closer = nopCloser{}
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closer = f
	}
	if out == nil {
		out = os.Stderr
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(s.Level)
	cfg.Output = out
	return logging.New(cfg), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
