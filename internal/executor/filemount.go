package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountMode selects how a component's declared file mount is exposed to
// the guest's preopened directories.
type MountMode int

const (
	// ModeDirect maps the host directory in place (read-only unless the
	// component's manifest explicitly allows transient writes).
	ModeDirect MountMode = iota
	// ModeCopy materializes the source into a fresh temp directory before
	// mounting, isolating the guest from concurrent host-side writes.
	ModeCopy
	// ModeNone mounts nothing; used for a component with no files.
	ModeNone
)

// ResolvedMount is one normalized host-path/guest-path pair, ready to be
// handed to the wasm guest's preopen configuration.
type ResolvedMount struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
	Mode      MountMode
}

// ResolveMounts validates and normalizes a component's declared mounts.
// Each host source must exist, be a directory, and must not be reached
// through a "`..`" path escape once joined against baseDir — this is the
// only sandboxing the executor itself performs; the wasm runtime's own
// preopen mechanism enforces the boundary at guest-syscall time.
func ResolveMounts(baseDir string, mounts []struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}, mode MountMode) ([]ResolvedMount, error) {
	if mode == ModeNone || len(mounts) == 0 {
		return nil, nil
	}
	out := make([]ResolvedMount, 0, len(mounts))
	for _, m := range mounts {
		abs, err := resolveWithinBase(baseDir, m.HostPath)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("executor: file mount %q: %w", m.HostPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("executor: file mount %q: not a directory", m.HostPath)
		}
		dest := abs
		if mode == ModeCopy {
			dest, err = copyToTemp(abs)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, ResolvedMount{
			HostPath:  dest,
			GuestPath: m.GuestPath,
			ReadOnly:  m.ReadOnly,
			Mode:      mode,
		})
	}
	return out, nil
}

// resolveWithinBase joins base and rel, rejecting any "`..`" component
// that would escape base once cleaned.
func resolveWithinBase(base, rel string) (string, error) {
	joined := filepath.Join(base, rel)
	cleanedBase := filepath.Clean(base)
	if joined != cleanedBase && !strings.HasPrefix(joined, cleanedBase+string(filepath.Separator)) {
		return "", fmt.Errorf("executor: file mount %q escapes component base directory", rel)
	}
	return joined, nil
}

func copyToTemp(src string) (string, error) {
	dst, err := os.MkdirTemp("", "wasmfactors-mount-*")
	if err != nil {
		return "", fmt.Errorf("executor: creating copy-mode temp dir: %w", err)
	}
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("executor: copying mount %q: %w", src, err)
	}
	return dst, nil
}
