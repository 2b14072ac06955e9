package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the number of rotated files kept on disk.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the size in MB at which the file rotates.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the file name used inside the log directory.
	DefaultLogFilename = "p4reviewd.log"
)

// RotatorConfig describes where and how the daemon log file rotates.
type RotatorConfig struct {
	Dir         string
	Filename    string
	MaxFiles    int
	MaxFileSize int
}

// RotatingWriter is an io.WriteCloser that feeds a background rotator
// through a pipe. Rotated files are gzip compressed.
type RotatingWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// NewRotatingWriter creates the log directory and starts the rotator.
func NewRotatingWriter(cfg RotatorConfig) (*RotatingWriter, error) {
	filename := cfg.Filename
	if filename == "" {
		filename = DefaultLogFilename
	}
	maxFiles := cfg.MaxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxLogFiles
	}
	maxSize := cfg.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxLogFileSize
	}

	logFile := filepath.Join(cfg.Dir, filename)
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// The rotator threshold is expressed in kilobytes.
	rot, err := rotator.New(logFile, int64(maxSize*1024), false, maxFiles)
	if err != nil {
		return nil, fmt.Errorf("create file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingWriter{
		pipe:    pw,
		rotator: rot,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)

		// The rotator is the log sink, so its own failure can only go
		// to stderr.
		if err := rot.Run(pr); err != nil {
			_, _ = fmt.Fprintf(
				os.Stderr, "log rotator stopped: %v\n", err,
			)
		}
	}()

	return w, nil
}

// Write sends b to the rotator.
func (w *RotatingWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close flushes the pipe and waits for the rotator to finish.
func (w *RotatingWriter) Close() error {
	err := w.pipe.Close()
	<-w.done

	return err
}
