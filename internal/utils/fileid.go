package utils

import (
	"io/fs"
	"syscall"
)

type fileKey struct{ dev, ino uint64 }

func fileID(info fs.FileInfo) (fileKey, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileKey{}, false
	}
	return fileKey{dev: uint64(st.Dev), ino: st.Ino}, true
}
