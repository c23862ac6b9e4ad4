package scanning

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Artifact is a transient file produced by one pipeline stage for the next.
// It must not outlive the ScanReceipt call that created it.
type Artifact struct {
	Path string

	once sync.Once
	err  error
}

// NewArtifact wraps an existing file path
func NewArtifact(path string) *Artifact {
	return &Artifact{Path: path}
}

// Release deletes the file. Only the first call touches the filesystem;
// later calls return the first result. A file that is already gone is not an error.
func (a *Artifact) Release() error {
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.err = fmt.Errorf("removing artifact: %w", err)
		}
	})
	return a.err
}

// releasePage is deferred by recognizers to honour the TextRecognizer contract
func releasePage(page *Artifact, logger *slog.Logger) {
	if err := page.Release(); err != nil {
		logger.Warn("Failed to remove rendered page", "image", page.Path, "error", err)
	}
}
