// Package testutil builds small Debian-like rootfs fixtures for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rtbox/rtbox/internal/fetch"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/ulikunitz/xz"
)

// Entry is one member of a fixture tarball
type Entry struct {
	Name     string
	Type     byte
	Mode     int64
	Linkname string
	Body     string
}

// Interpreter returns the loader name and its directory for arch.
func Interpreter(arch models.Architecture) (name, dir string) {
	switch arch {
	case models.ArchARM64:
		return "ld-linux-aarch64.so.1", "usr/lib/aarch64-linux-gnu"
	default:
		return "ld-linux-x86-64.so.2", "usr/lib/x86_64-linux-gnu"
	}
}

// DpkgStatus returns a dpkg status database listing libc6 at version.
func DpkgStatus(arch models.Architecture, version string) string {
	return fmt.Sprintf(`Package: base-files
Status: install ok installed
Version: 12.4

Package: libc6
Status: install ok installed
Architecture: %s
Multi-Arch: same
Version: %s
Description: GNU C Library: Shared libraries
 Contains the standard libraries that are used by nearly all programs on
 the system.

`, arch, version)
}

// RootfsEntries returns a merged-/usr Debian layout for arch with the given
// glibc version.
func RootfsEntries(arch models.Architecture, glibc string) []Entry {
	ld, libdir := Interpreter(arch)
	triplet := arch.Triplet()

	entries := []Entry{
		{Name: "./", Type: tar.TypeDir, Mode: 0755},
		{Name: "./usr/", Type: tar.TypeDir, Mode: 0755},
		{Name: "./usr/bin/", Type: tar.TypeDir, Mode: 0755},
		{Name: "./usr/bin/true", Type: tar.TypeReg, Mode: 0755, Body: "ELF true"},
		{Name: "./usr/lib/", Type: tar.TypeDir, Mode: 0755},
		{Name: "./" + libdir + "/", Type: tar.TypeDir, Mode: 0755},
		{Name: "./" + libdir + "/" + ld, Type: tar.TypeReg, Mode: 0755, Body: "ELF ld.so"},
		{Name: "./" + libdir + "/libc.so.6", Type: tar.TypeReg, Mode: 0755,
			Body: fmt.Sprintf("ELF GNU C Library (Debian GLIBC %s-1) stable release version %s.\n", glibc, glibc)},
		{Name: "./bin", Type: tar.TypeSymlink, Linkname: "usr/bin"},
		{Name: "./lib", Type: tar.TypeSymlink, Linkname: "usr/lib"},
		{Name: "./etc/", Type: tar.TypeDir, Mode: 0755},
		{Name: "./etc/debian_version", Type: tar.TypeReg, Mode: 0644, Body: "fixture\n"},
		{Name: "./var/lib/dpkg/status", Type: tar.TypeReg, Mode: 0644, Body: DpkgStatus(arch, glibc+"-1")},
		{Name: "./root/", Type: tar.TypeDir, Mode: 0700},
		{Name: "./tmp/", Type: tar.TypeDir, Mode: 01777},
	}
	if arch == models.ArchAMD64 {
		entries = append(entries,
			Entry{Name: "./lib64", Type: tar.TypeSymlink, Linkname: "usr/lib64"},
			Entry{Name: "./usr/lib64/", Type: tar.TypeDir, Mode: 0755},
			// Debian ships this one as an absolute link.
			Entry{Name: "./usr/lib64/" + ld, Type: tar.TypeSymlink, Linkname: "/lib/" + triplet + "/" + ld},
		)
	} else {
		entries = append(entries,
			Entry{Name: "./usr/lib/" + ld, Type: tar.TypeSymlink, Linkname: triplet + "/" + ld},
		)
	}
	return entries
}

// BuildTar writes entries as an uncompressed tarball.
func BuildTar(entries []Entry) ([]byte, error) {
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Type,
			Mode:     e.Mode,
			Linkname: e.Linkname,
			ModTime:  mtime,
		}
		if e.Type == tar.TypeSymlink && hdr.Mode == 0 {
			hdr.Mode = 0777
		}
		if e.Type == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if e.Type == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Body); err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTarXz writes entries as an xz-compressed tarball.
func BuildTarXz(entries []Entry) ([]byte, error) {
	raw, err := BuildTar(entries)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RootfsArchive returns a rootfs.tar.xz for arch.
func RootfsArchive(t testing.TB, arch models.Architecture, glibc string) []byte {
	t.Helper()
	data, err := BuildTarXz(RootfsEntries(arch, glibc))
	if err != nil {
		t.Fatalf("Failed to build rootfs archive: %v", err)
	}
	return data
}

// WriteRootfs lays the fixture tree out directly under dir.
func WriteRootfs(t testing.TB, dir string, arch models.Architecture, glibc string) {
	t.Helper()
	for _, e := range RootfsEntries(arch, glibc) {
		p := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(e.Name, "./")))
		var err error
		switch e.Type {
		case tar.TypeDir:
			err = os.MkdirAll(p, 0755)
		case tar.TypeReg:
			if err = os.MkdirAll(filepath.Dir(p), 0755); err == nil {
				err = os.WriteFile(p, []byte(e.Body), os.FileMode(e.Mode))
			}
		case tar.TypeSymlink:
			if err = os.MkdirAll(filepath.Dir(p), 0755); err == nil {
				err = os.Symlink(e.Linkname, p)
			}
		}
		if err != nil {
			t.Fatalf("Failed to write fixture %s: %v", e.Name, err)
		}
	}
}

// Source is an in-memory download source
type Source struct {
	mu sync.Mutex
	// Archives maps a URL to its content.
	Archives map[string][]byte
	// Builds maps an index URL to its build directories.
	Builds map[string][]string
	// ShortBy makes Open deliver that many bytes less than advertised.
	ShortBy int
	// Gate, when set, is received from before Open returns.
	Gate chan struct{}

	opens int
}

// NewSource creates an empty Source.
func NewSource() *Source {
	return &Source{Archives: map[string][]byte{}, Builds: map[string][]string{}}
}

// Opens returns how many archives were opened.
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func notFound(rawURL string) error {
	return models.NewError(models.ErrNetwork, "", "%w", &fetch.StatusError{URL: rawURL, StatusCode: 404})
}

// Open implements installer.Source.
func (s *Source) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	s.opens++
	data, ok := s.Archives[rawURL]
	gate := s.Gate
	short := s.ShortBy
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if !ok {
		return nil, 0, notFound(rawURL)
	}
	size := int64(len(data))
	if short > 0 && short < len(data) {
		data = data[:len(data)-short]
	}
	return io.NopCloser(bytes.NewReader(data)), size, nil
}

// LatestBuild implements installer.Source.
func (s *Source) LatestBuild(ctx context.Context, indexURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	builds := s.Builds[strings.TrimSuffix(indexURL, "/")+"/"]
	if len(builds) == 0 {
		return "", notFound(indexURL)
	}
	return builds[len(builds)-1], nil
}

// Fetch implements verify.Fetcher.
func (s *Source) Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Archives[rawURL]
	if !ok {
		return nil, notFound(rawURL)
	}
	return data, nil
}
