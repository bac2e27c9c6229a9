package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// WriteFile writes data to a file, creating directories as needed
func WriteFile(path string, data []byte, perm os.FileMode) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, perm)
}

// EnsureDir ensures a directory exists, creating it if necessary
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DirSize returns the apparent size of every regular file below root.
// Symlinks are not followed and hardlinked files are counted once.
func DirSize(root string) (int64, error) {
	seen := make(map[fileKey]bool)
	var total int64

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsRegular() {
				return nil
			}
			info, err := os.Lstat(osPathname)
			if err != nil {
				return err
			}
			if key, ok := fileID(info); ok {
				if seen[key] {
					return nil
				}
				seen[key] = true
			}
			total += info.Size()
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			if errors.Is(err, fs.ErrPermission) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
	return total, err
}

// RemoveTree deletes root and everything below it. Directories without
// owner write permission, common in extracted rootfs trees, are made
// writable and the removal is retried. A missing root is not an error.
func RemoveTree(root string) error {
	err := os.RemoveAll(root)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return err
	}

	walkErr := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return os.Chmod(osPathname, 0700)
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if walkErr != nil {
		return walkErr
	}
	return os.RemoveAll(root)
}
