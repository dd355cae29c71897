package executor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStdioDiscardsWithoutLogDirOrFollow(t *testing.T) {
	s, err := NewStdio("comp-a", StdioConfig{}, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Stdout.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
}

func TestNewStdioFollowTeesToFallback(t *testing.T) {
	var out bytes.Buffer
	s, err := NewStdio("comp-a", StdioConfig{FollowSet: map[string]bool{"comp-a": true}}, &out, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Stdout.Write([]byte("hello\n")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("comp-a")) {
		t.Fatalf("expected component id tag in followed output, got %q", out.String())
	}
}

func TestNewStdioWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStdio("comp-b", StdioConfig{LogDir: dir}, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Stdout.Write([]byte("line\n")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "comp-b.log")); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}
