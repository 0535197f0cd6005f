package capture

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)

// Artifact is a captured PNG on transient storage. It belongs to one upload cycle.
type Artifact struct {
	Path      string
	Name      string
	Width     int
	Height    int
	CreatedAt time.Time
}

// Open opens the artifact for reading
func (a *Artifact) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Remove deletes the artifact file. Removing an already deleted artifact is not an error.
func (a *Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether the artifact file is still on disk
func (a *Artifact) Exists() bool {
	_, err := os.Stat(a.Path)
	return err == nil
}
