package build

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
)

// LogConfig selects the daemon log level and, optionally, a rotated file.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, critical, off.
	Level string

	// Dir enables file logging when non-empty.
	Dir string

	MaxFiles    int
	MaxFileSize int
}

// NewLogger builds the daemon's slog.Logger. Records go to stdout and, if a
// directory is configured, to a rotating file as well. The returned closer
// flushes the file writer.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	level := btclogv1.LevelInfo
	if cfg.Level != "" {
		lvl, ok := btclogv1.LevelFromString(cfg.Level)
		if !ok {
			return nil, nil, fmt.Errorf("unknown log level %q",
				cfg.Level)
		}
		level = lvl
	}

	handlers := []btclog.Handler{btclog.NewDefaultHandler(os.Stdout)}

	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		w, err := NewRotatingWriter(RotatorConfig{
			Dir:         cfg.Dir,
			MaxFiles:    cfg.MaxFiles,
			MaxFileSize: cfg.MaxFileSize,
		})
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, btclog.NewDefaultHandler(w))
		closer = w
	}

	set := NewHandlerSet(handlers...)
	set.SetLevel(level)

	return slog.New(set.SubSystem("P4RV")), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
