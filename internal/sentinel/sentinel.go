// Package sentinel reads and writes the completion marker placed at the
// root of every installed rootfs tree. A tree without the marker is
// considered not installed.
package sentinel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rtbox/rtbox/internal/models"
)

// FileName is the marker's name inside the tree root.
const FileName = ".rtbox-installed"

// FormatVersion is bumped when Record changes incompatibly.
const FormatVersion = 1

// Record is the marker's content
type Record struct {
	Format       int                 `toml:"format"`
	Distro       string              `toml:"distro"`
	Architecture models.Architecture `toml:"architecture"`
	SourceURL    string              `toml:"source_url"`
	SHA256       string              `toml:"sha256,omitempty"`
	InstalledAt  time.Time           `toml:"installed_at"`
}

// Path returns the marker path for the tree at dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether dir carries a marker.
func Exists(dir string) bool {
	info, err := os.Lstat(Path(dir))
	return err == nil && info.Mode().IsRegular()
}

// Write stores rec in dir. The marker is written to a temporary file and
// renamed so a reader never sees a partial record.
func Write(dir string, rec Record) error {
	if rec.Format == 0 {
		rec.Format = FormatVersion
	}
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode marker: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create marker: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close marker: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), Path(dir)); err != nil {
		return fmt.Errorf("failed to place marker: %w", err)
	}
	renamed = true
	return nil
}

// ErrMissing is returned by Read when dir has no marker.
var ErrMissing = errors.New("completion marker missing")

// Read loads the marker of the tree at dir.
func Read(dir string) (*Record, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode marker %s: %w", Path(dir), err)
	}
	if rec.Distro == "" || rec.Architecture == "" {
		return nil, fmt.Errorf("marker %s is incomplete", Path(dir))
	}
	return &rec, nil
}

// Remove deletes the marker, turning the tree into an unmarked one.
func Remove(dir string) error {
	err := os.Remove(Path(dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
