package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// StdioConfig controls where a component's stdout/stderr land.
type StdioConfig struct {
	// LogDir, if non-empty, receives one rotated log file per component.
	LogDir string
	// FollowSet names components whose output is additionally tee'd to
	// the embedder's own console streams.
	FollowSet map[string]bool
	// MaxSizeMB, MaxBackups, MaxAgeDays configure the per-component
	// lumberjack.Logger; zero values fall back to lumberjack's defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// componentPrefixWriter tags every write with the owning component id,
// matching the "log lines are tagged with the component id" requirement
// for multiplexed stdio.
type componentPrefixWriter struct {
	componentID string
	w           io.Writer
}

func (p *componentPrefixWriter) Write(b []byte) (int, error) {
	n, err := fmt.Fprintf(p.w, "[%s] %s", p.componentID, b)
	if err != nil {
		return 0, err
	}
	if n < len(b) {
		// fmt.Fprintf's n counts the formatted output, not len(b); report
		// the full input as consumed so io.Copy-style callers don't retry.
		return len(b), nil
	}
	return len(b), nil
}

// Stdio is the multiplexed stdout/stderr pair built for one instance.
type Stdio struct {
	Stdout io.Writer
	Stderr io.Writer
	closer func() error
}

// Close flushes and closes any per-component log file backing this
// Stdio. Safe to call on a Stdio with no log file.
func (s *Stdio) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewStdio builds the stdout/stderr pair for componentID per cfg: always
// a per-component rotated log file if cfg.LogDir is set, additionally
// teed to fallbackOut/fallbackErr (the embedder's own console) when
// componentID is in cfg.FollowSet.
func NewStdio(componentID string, cfg StdioConfig, fallbackOut, fallbackErr io.Writer) (*Stdio, error) {
	if cfg.LogDir == "" {
		if cfg.FollowSet[componentID] {
			return &Stdio{
				Stdout: &componentPrefixWriter{componentID, fallbackOut},
				Stderr: &componentPrefixWriter{componentID, fallbackErr},
			}, nil
		}
		return &Stdio{Stdout: io.Discard, Stderr: io.Discard}, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("executor: creating log dir %q: %w", cfg.LogDir, err)
	}
	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, componentID+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var out, errW io.Writer = fileLogger, fileLogger
	if cfg.FollowSet[componentID] {
		out = io.MultiWriter(fileLogger, &componentPrefixWriter{componentID, fallbackOut})
		errW = io.MultiWriter(fileLogger, &componentPrefixWriter{componentID, fallbackErr})
	}
	return &Stdio{Stdout: out, Stderr: errW, closer: fileLogger.Close}, nil
}
