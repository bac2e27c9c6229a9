// Package store manages the rootfs trees installed under <home>/rootfs.
//
// A tree counts as installed only when it carries a completion marker.
// Trees appear at their final path through a single rename, so readers
// never observe a half written tree as installed.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rtbox/rtbox/internal/debian"
	"github.com/rtbox/rtbox/internal/installer"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/rtbox/rtbox/internal/sentinel"
	"github.com/rtbox/rtbox/internal/utils"
	"github.com/sirupsen/logrus"
)

// Installer provisions a tree on behalf of the store.
type Installer interface {
	Install(ctx context.Context, req installer.Request) (*installer.Result, error)
}

// Store is a directory of installed rootfs trees for one host architecture
type Store struct {
	root      string
	arch      models.Architecture
	installer Installer
}

// New creates a Store rooted at root.
func New(root string, arch models.Architecture, inst Installer) *Store {
	return &Store{root: root, arch: arch, installer: inst}
}

// Arch returns the architecture trees are installed for.
func (s *Store) Arch() models.Architecture {
	return s.arch
}

// Path returns where the tree for name lives.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// IsInstalled reports whether a completed tree exists for name.
func (s *Store) IsInstalled(name string) bool {
	return sentinel.Exists(s.Path(name))
}

// Lookup returns the installed tree for name without inspecting its
// contents. It fails with NotInstalled when there is no completed tree and
// with ArchitectureMismatch when the tree was built for another architecture.
func (s *Store) Lookup(name string) (*models.InstalledRootfs, error) {
	dir := s.Path(name)
	rec, err := sentinel.Read(dir)
	if errors.Is(err, sentinel.ErrMissing) {
		return nil, models.NewError(models.ErrNotInstalled, name,
			"rootfs is not installed (run: rtbox pull %s)", name)
	}
	if err != nil {
		return nil, models.NewError(models.ErrIO, name, "%w", err)
	}

	rf := &models.InstalledRootfs{
		Name:         name,
		Path:         dir,
		Architecture: rec.Architecture,
		SourceURL:    rec.SourceURL,
		SHA256:       rec.SHA256,
		InstalledAt:  rec.InstalledAt,
	}
	if rec.Architecture != s.arch {
		return rf, models.NewError(models.ErrArchitectureMismatch, name,
			"rootfs at %s was installed for %s, host is %s (run: rtbox remove %s)",
			dir, rec.Architecture, s.arch, name)
	}
	return rf, nil
}

// Describe is Lookup plus the on-disk size and detected glibc version.
func (s *Store) Describe(name string) (*models.InstalledRootfs, error) {
	rf, err := s.Lookup(name)
	if err != nil {
		return rf, err
	}

	size, err := utils.DirSize(rf.Path)
	if err != nil {
		return nil, models.NewError(models.ErrIO, name, "measuring %s: %w", rf.Path, err)
	}
	rf.SizeBytes = size

	if v, err := debian.GlibcVersion(rf.Path, rf.Architecture); err == nil {
		rf.GlibcVersion = v
	} else {
		logrus.Debugf("Cannot detect glibc version of %s: %v", name, err)
	}
	return rf, nil
}

// EnsureInstalled returns the installed tree for distro, installing it
// first if necessary. No network access happens when the tree exists.
func (s *Store) EnsureInstalled(ctx context.Context, distro models.Distro) (*models.InstalledRootfs, error) {
	return s.Pull(ctx, distro, false)
}

// Pull installs distro. With force an existing tree is downloaded again
// and atomically replaced; otherwise an existing tree is kept.
func (s *Store) Pull(ctx context.Context, distro models.Distro, force bool) (*models.InstalledRootfs, error) {
	if !force {
		rf, err := s.Lookup(distro.Name)
		if err == nil || !models.IsType(err, models.ErrNotInstalled) {
			return rf, err
		}
	}

	logrus.Infof("Installing %s for %s", distro, s.arch)
	res, err := s.installer.Install(ctx, installer.Request{
		Distro:  distro,
		Arch:    s.arch,
		RootDir: s.root,
		Replace: force,
	})
	if models.IsType(err, models.ErrInstallRace) {
		logrus.Infof("%s was installed concurrently, using that tree", distro.Name)
		return s.Lookup(distro.Name)
	}
	if err != nil {
		return nil, err
	}
	logrus.Infof("Installed %s into %s", distro.Name, res.Path)
	return s.Lookup(distro.Name)
}

// Remove deletes the tree for name. The marker goes first so an
// interrupted removal leaves an unmarked tree. Removing a tree that does
// not exist succeeds.
func (s *Store) Remove(name string) error {
	dir := s.Path(name)
	if _, err := os.Lstat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := sentinel.Remove(dir); err != nil {
		return models.NewError(models.ErrRemovalFailed, name, "removing marker: %w", err)
	}
	if err := utils.RemoveTree(dir); err != nil {
		return models.NewError(models.ErrRemovalFailed, name, "removing %s: %w", dir, err)
	}
	logrus.Debugf("Removed %s", dir)
	return nil
}

// Installed returns the names of every completed tree, sorted.
func (s *Store) Installed() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewError(models.ErrIO, "", "listing %s: %w", s.root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if s.IsInstalled(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CleanStaging removes staging and trash directories abandoned by
// interrupted runs. Only entries older than maxAge are touched so that
// installs in progress elsewhere are left alone.
func (s *Store) CleanStaging(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, installer.StagingPrefix) && !strings.HasPrefix(name, installer.TrashPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(s.root, name)
		if err := utils.RemoveTree(p); err != nil {
			return removed, fmt.Errorf("removing %s: %w", p, err)
		}
		logrus.Debugf("Removed abandoned %s", p)
		removed++
	}
	return removed, nil
}
