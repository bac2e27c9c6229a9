package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirSize(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(filepath.Join(root, "a", "b", "file"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(filepath.Join(root, "other"), make([]byte, 23), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(filepath.Join(root, "other"), filepath.Join(root, "other-link")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/usr/lib/huge", filepath.Join(root, "dangling")); err != nil {
		t.Fatal(err)
	}

	size, err := DirSize(root)
	if err != nil {
		t.Fatalf("DirSize failed: %v", err)
	}
	if size != 123 {
		t.Errorf("DirSize = %d, want 123", size)
	}
}

func TestRemoveTreeReadOnlyDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	ro := filepath.Join(root, "usr", "share")
	if err := WriteFile(filepath.Join(ro, "file"), []byte("x"), 0444); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(ro, 0555); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(root, 0555); err != nil {
		t.Fatal(err)
	}

	if err := RemoveTree(root); err != nil {
		t.Fatalf("RemoveTree failed: %v", err)
	}
	if _, err := os.Lstat(root); !os.IsNotExist(err) {
		t.Errorf("tree still present: %v", err)
	}
	if err := RemoveTree(root); err != nil {
		t.Errorf("RemoveTree of missing path failed: %v", err)
	}
}
