// Package paths resolves the portable, on-disk directory layout the rest of
// the orchestration core stores its state under. Everything lives next to
// the executable (or a caller-supplied override directory in tests), never
// under the user's home directory, so the whole installation stays
// relocatable.
package paths

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds every directory and fixed file path the core touches on disk.
// All directories are created (0o700) by New/NewAt before it returns.
type Paths struct {
	Base            string
	DB              string
	Vectors         string
	Models          string
	EmbeddingsCache string
	Files           string
	SecretKeyFile   string
}

const dirPerm = 0o700

// New resolves the portable base directory from the running executable's
// location and builds a Paths rooted there. If the executable's path cannot
// be determined (e.g. under some test runners), it falls back to the
// current working directory and logs a warning — this is a best-effort
// fallback, not a security boundary.
func New() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		slog.Warn("paths: os.Executable failed, falling back to working directory", "error", err)
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, fmt.Errorf("paths: cannot resolve base directory: %w", werr)
		}
		return NewAt(wd)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		resolved = exe
	}
	return NewAt(filepath.Dir(resolved))
}

// NewAt builds a Paths rooted at an explicit base directory, bypassing
// executable-location resolution. Tests use this with t.TempDir().
func NewAt(base string) (*Paths, error) {
	base = filepath.Clean(base)

	p := &Paths{
		Base:            base,
		DB:              filepath.Join(base, "data", "whytchat.db"),
		Vectors:         filepath.Join(base, "data", "vectors"),
		Models:          filepath.Join(base, "models"),
		EmbeddingsCache: filepath.Join(base, "models", "embeddings-cache"),
		Files:           filepath.Join(base, "files"),
		SecretKeyFile:   filepath.Join(base, ".encryption_key"),
	}

	for _, dir := range []string{
		p.Base,
		filepath.Dir(p.DB),
		p.Vectors,
		p.Models,
		p.EmbeddingsCache,
		p.Files,
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("paths: cannot create directory %q: %w", dir, err)
		}
	}

	return p, nil
}
