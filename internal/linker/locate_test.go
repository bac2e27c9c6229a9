package linker

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/rtbox/rtbox/internal/testutil"
)

func TestLocateMergedUsrAMD64(t *testing.T) {
	root := t.TempDir()
	testutil.WriteRootfs(t, root, models.ArchAMD64, "2.36")

	layout, err := Locate(root, models.ArchAMD64)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	wantInterp := filepath.Join(root, "usr", "lib", "x86_64-linux-gnu", "ld-linux-x86-64.so.2")
	if layout.Interpreter != wantInterp {
		t.Errorf("Interpreter = %q, want %q", layout.Interpreter, wantInterp)
	}

	want := []string{
		filepath.Join(root, "usr", "lib", "x86_64-linux-gnu"),
		filepath.Join(root, "usr", "lib64"),
		filepath.Join(root, "usr", "lib"),
	}
	if len(layout.LibraryDirs) != len(want) {
		t.Fatalf("LibraryDirs = %v, want %v", layout.LibraryDirs, want)
	}
	for i := range want {
		if layout.LibraryDirs[i] != want[i] {
			t.Errorf("LibraryDirs[%d] = %q, want %q", i, layout.LibraryDirs[i], want[i])
		}
	}
}

func TestLocateARM64(t *testing.T) {
	root := t.TempDir()
	testutil.WriteRootfs(t, root, models.ArchARM64, "2.41")

	layout, err := Locate(root, models.ArchARM64)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	want := filepath.Join(root, "usr", "lib", "aarch64-linux-gnu", "ld-linux-aarch64.so.1")
	if layout.Interpreter != want {
		t.Errorf("Interpreter = %q, want %q", layout.Interpreter, want)
	}
	if len(layout.LibraryDirs) == 0 || layout.LibraryDirs[0] != filepath.Dir(want) {
		t.Errorf("LibraryDirs = %v, arch-qualified dir should come first", layout.LibraryDirs)
	}

	// An amd64 lookup in an arm64 tree must not find anything.
	if _, err := Locate(root, models.ArchAMD64); !models.IsType(err, models.ErrLinkerNotFound) {
		t.Errorf("expected LinkerNotFound for foreign arch, got %v", err)
	}
}

func TestLocateNeverUsesHostLoader(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "lib64"), 0755); err != nil {
		t.Fatal(err)
	}
	// Points at the host loader when followed naively.
	if err := os.Symlink("/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2", filepath.Join(root, "lib64", "ld-linux-x86-64.so.2")); err != nil {
		t.Fatal(err)
	}

	_, err := Locate(root, models.ArchAMD64)
	if !models.IsType(err, models.ErrLinkerNotFound) {
		t.Fatalf("expected LinkerNotFound, got %v", err)
	}
}

func TestLocateReRootsAbsoluteSymlink(t *testing.T) {
	root := t.TempDir()
	loader := filepath.Join(root, "opt", "glibc", "ld-linux-x86-64.so.2")
	if err := os.MkdirAll(filepath.Dir(loader), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(loader, []byte("ld"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "lib64"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/opt/glibc/ld-linux-x86-64.so.2", filepath.Join(root, "lib64", "ld-linux-x86-64.so.2")); err != nil {
		t.Fatal(err)
	}

	layout, err := Locate(root, models.ArchAMD64)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if layout.Interpreter != loader {
		t.Errorf("Interpreter = %q, want %q", layout.Interpreter, loader)
	}
	if len(layout.LibraryDirs) != 1 || layout.LibraryDirs[0] != filepath.Join(root, "lib64") {
		t.Errorf("LibraryDirs = %v", layout.LibraryDirs)
	}
}

func TestLocateEmptyRootfs(t *testing.T) {
	_, err := Locate(t.TempDir(), models.ArchAMD64)
	if !models.IsType(err, models.ErrLinkerNotFound) {
		t.Errorf("expected LinkerNotFound, got %v", err)
	}
	if _, err := Locate(t.TempDir(), models.Architecture("mips")); !models.IsType(err, models.ErrUnsupportedArchitecture) {
		t.Errorf("expected UnsupportedArchitecture, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0755); err != nil {
		t.Fatal(err)
	}
	os.Symlink("../../../etc", filepath.Join(root, "up"))
	os.Symlink("b", filepath.Join(root, "a"))
	os.Symlink("a", filepath.Join(root, "b"))

	got, err := Resolve(root, "up")
	if err != nil {
		t.Fatalf("Resolve(up) failed: %v", err)
	}
	if got != filepath.Join(root, "etc") {
		t.Errorf("Resolve(up) = %q, want clamped to root", got)
	}

	if got, _ := Resolve(root, "/../etc/."); got != filepath.Join(root, "etc") {
		t.Errorf("Resolve(/../etc/.) = %q", got)
	}

	if _, err := Resolve(root, "a"); !errors.Is(err, syscall.ELOOP) {
		t.Errorf("expected ELOOP, got %v", err)
	}
	if _, err := Resolve(root, "missing/file"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}
}
