package linker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

const maxSymlinks = 40

// Resolve evaluates unsafePath as if root were the filesystem root: every
// symlink along the way is followed, absolute targets are re-rooted at root
// and ".." never climbs above it. The returned host path contains no
// symlinks. Errors from os.Lstat are returned unchanged so callers can test
// for fs.ErrNotExist.
func Resolve(root, unsafePath string) (string, error) {
	root = filepath.Clean(root)
	resolved := ""
	remaining := filepath.ToSlash(unsafePath)
	links := 0

	for remaining != "" {
		var part string
		if i := strings.IndexByte(remaining, '/'); i >= 0 {
			part, remaining = remaining[:i], remaining[i+1:]
		} else {
			part, remaining = remaining, ""
		}

		switch part {
		case "", ".":
			continue
		case "..":
			resolved = parent(resolved)
			continue
		}

		next := path.Join(resolved, part)
		full := filepath.Join(root, filepath.FromSlash(next))
		info, err := os.Lstat(full)
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		links++
		if links > maxSymlinks {
			return "", &fs.PathError{Op: "resolve", Path: unsafePath, Err: syscall.ELOOP}
		}
		target, err := os.Readlink(full)
		if err != nil {
			return "", err
		}
		if path.IsAbs(target) {
			resolved = ""
		}
		if remaining != "" {
			remaining = target + "/" + remaining
		} else {
			remaining = target
		}
	}

	return filepath.Join(root, filepath.FromSlash(resolved)), nil
}

func parent(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// statInRoot resolves rel inside root and stats the result.
func statInRoot(root, rel string) (string, fs.FileInfo, error) {
	p, err := Resolve(root, rel)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", nil, err
	}
	return p, info, nil
}

// isMissing reports errors meaning "not there" rather than "cannot look".
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.ELOOP)
}

func describeMissing(root string, tried []string) string {
	return fmt.Sprintf("tried %s under %s", strings.Join(tried, ", "), root)
}
