// Package source persists editor buffers for the compiler and computes where
// the compiled artifact will be written.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cppide/internal/domain/execution"
)

const filePattern = "cppide-*"

// Materializer writes source buffers to uniquely named temporary files.
type Materializer struct {
	// Dir is the directory temporary files are created in. Empty selects
	// os.TempDir.
	Dir string
	// GOOS selects the executable naming convention. Empty selects the host.
	GOOS string
}

// Materialize writes text verbatim to a fresh temporary file with a suffix
// appropriate for lang. No file is created at the artifact path.
func (m Materializer) Materialize(text string, lang execution.Language) (execution.MaterializedSource, error) {
	f, err := os.CreateTemp(m.Dir, filePattern+lang.SourceSuffix())
	if err != nil {
		return execution.MaterializedSource{}, fmt.Errorf("%w: create temporary source: %v", execution.ErrSetup, err)
	}

	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return execution.MaterializedSource{}, fmt.Errorf("%w: write temporary source: %v", execution.ErrSetup, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return execution.MaterializedSource{}, fmt.Errorf("%w: close temporary source: %v", execution.ErrSetup, err)
	}

	return execution.MaterializedSource{
		SourcePath:   f.Name(),
		ArtifactPath: ArtifactPath(f.Name(), m.goos()),
	}, nil
}

// Clean deletes the source and artifact files and reports how many existed.
func (m Materializer) Clean(src execution.MaterializedSource) (int, error) {
	removed := 0
	var errs []error
	for _, p := range []string{src.SourcePath, src.ArtifactPath} {
		if p == "" {
			continue
		}
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func (m Materializer) goos() string {
	if m.GOOS != "" {
		return m.GOOS
	}
	return runtime.GOOS
}

// ArtifactPath derives the executable path for a source path. It only
// manipulates the string and never touches the filesystem.
func ArtifactPath(sourcePath, goos string) string {
	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	if goos == "windows" {
		return base + ".exe"
	}
	return base
}
