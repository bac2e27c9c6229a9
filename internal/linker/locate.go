// Package linker finds the dynamic loader and library directories of a
// rootfs tree. It never falls back to the host's loader.
package linker

import (
	"os"
	"path"
	"path/filepath"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/sirupsen/logrus"
)

// Layout is what the execution adapter needs from a rootfs
type Layout struct {
	Interpreter string
	LibraryDirs []string
}

type archLayout struct {
	loader     string
	loaderDirs []string
	libDirs    []string
}

func layoutFor(arch models.Architecture) (archLayout, bool) {
	t := arch.Triplet()
	switch arch {
	case models.ArchAMD64:
		return archLayout{
			loader:     "ld-linux-x86-64.so.2",
			loaderDirs: []string{"lib/" + t, "usr/lib/" + t, "lib64", "usr/lib64"},
			libDirs:    []string{"lib/" + t, "usr/lib/" + t, "lib64", "usr/lib64", "lib", "usr/lib"},
		}, true
	case models.ArchARM64:
		return archLayout{
			loader:     "ld-linux-aarch64.so.1",
			loaderDirs: []string{"lib/" + t, "usr/lib/" + t, "lib", "usr/lib"},
			libDirs:    []string{"lib/" + t, "usr/lib/" + t, "lib", "usr/lib"},
		}, true
	default:
		return archLayout{}, false
	}
}

// Locate returns the loader and library search directories of the rootfs
// at rootfsPath. Paths in the result are real paths inside the rootfs.
func Locate(rootfsPath string, arch models.Architecture) (*Layout, error) {
	l, ok := layoutFor(arch)
	if !ok {
		return nil, models.NewError(models.ErrUnsupportedArchitecture, "", "no loader layout for %q", arch)
	}

	interp, err := findLoader(rootfsPath, l)
	if err != nil {
		return nil, err
	}

	return &Layout{
		Interpreter: interp,
		LibraryDirs: libraryDirs(rootfsPath, l.libDirs),
	}, nil
}

func findLoader(root string, l archLayout) (string, error) {
	var tried []string
	for _, dir := range l.loaderDirs {
		rel := path.Join(dir, l.loader)
		tried = append(tried, rel)
		p, info, err := statInRoot(root, rel)
		if err != nil {
			if !isMissing(err) {
				return "", models.NewError(models.ErrIO, "", "inspecting %s: %w", rel, err)
			}
			continue
		}
		if info.Mode().IsRegular() {
			logrus.Debugf("Using loader %s", p)
			return p, nil
		}
	}

	// Unusual layouts: look for any loader of the right architecture.
	stem := l.loader[:len(l.loader)-len(path.Ext(l.loader))]
	for _, pattern := range []string{"lib*/" + stem + "*", "lib*/*/" + stem + "*", "usr/lib*/*/" + stem + "*"} {
		matches, _ := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err != nil {
				continue
			}
			p, info, err := statInRoot(root, rel)
			if err == nil && info.Mode().IsRegular() {
				logrus.Debugf("Using loader %s found by %s", p, pattern)
				return p, nil
			}
		}
	}

	return "", models.NewError(models.ErrLinkerNotFound, "", "no %s in rootfs (%s)", l.loader, describeMissing(root, tried))
}

func libraryDirs(root string, candidates []string) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, rel := range candidates {
		p, info, err := statInRoot(root, rel)
		if err != nil || !info.IsDir() || seen[p] {
			continue
		}
		seen[p] = true
		dirs = append(dirs, p)
	}
	return dirs
}

// Exists reports whether rel exists inside root after in-root resolution.
func Exists(root, rel string) bool {
	p, err := Resolve(root, rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}
