package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	typeflag byte
	mode     int64
	linkname string
	body     string
}

var mtime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     e.mode,
			Linkname: e.linkname,
			Size:     int64(len(e.body)),
			ModTime:  mtime,
			Format:   tar.FormatPAX,
		}
		if e.typeflag != tar.TypeReg {
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", e.name, err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("Write(%s): %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func compressXz(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func rootfsEntries() []entry {
	return []entry{
		{name: "./", typeflag: tar.TypeDir, mode: 0755},
		{name: "./usr/", typeflag: tar.TypeDir, mode: 0755},
		{name: "./usr/lib/", typeflag: tar.TypeDir, mode: 0755},
		{name: "./usr/lib/x86_64-linux-gnu/", typeflag: tar.TypeDir, mode: 0755},
		{name: "./usr/lib/x86_64-linux-gnu/libc.so.6", typeflag: tar.TypeReg, mode: 0755, body: "libc"},
		{name: "./lib", typeflag: tar.TypeSymlink, mode: 0777, linkname: "usr/lib"},
		{name: "./lib64/", typeflag: tar.TypeDir, mode: 0755},
		{name: "./lib64/ld-linux-x86-64.so.2", typeflag: tar.TypeSymlink, mode: 0777, linkname: "/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2"},
		{name: "./usr/bin/su", typeflag: tar.TypeReg, mode: 04755, body: "su"},
		{name: "./usr/bin/su2", typeflag: tar.TypeLink, linkname: "./usr/bin/su"},
		{name: "./tmp/", typeflag: tar.TypeDir, mode: 01777},
		{name: "./ro/", typeflag: tar.TypeDir, mode: 0555},
		{name: "./ro/file", typeflag: tar.TypeReg, mode: 0444, body: "readonly"},
		{name: "./dev/null", typeflag: tar.TypeChar, mode: 0666},
	}
}

func restoreWritable(t *testing.T, dir string) {
	t.Cleanup(func() {
		filepath.Walk(dir, func(p string, info fs.FileInfo, err error) error {
			if err == nil && info.IsDir() {
				os.Chmod(p, 0755)
			}
			return nil
		})
	})
}

func TestExtractXzRootfs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "tree")
	restoreWritable(t, dest)

	data := compressXz(t, buildTar(t, rootfsEntries()))
	stats, err := Extract(context.Background(), bytes.NewReader(data), dest, "rootfs.tar.xz")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if stats.Format != FormatXz {
		t.Errorf("Format = %s, want xz", stats.Format)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (device node)", stats.Skipped)
	}
	if stats.Hardlinks != 1 || stats.Symlinks != 2 {
		t.Errorf("unexpected link counts: %+v", stats)
	}

	// Symlinks are stored verbatim, absolute ones included.
	if got, _ := os.Readlink(filepath.Join(dest, "lib")); got != "usr/lib" {
		t.Errorf("lib -> %q, want usr/lib", got)
	}
	want := "/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2"
	if got, _ := os.Readlink(filepath.Join(dest, "lib64", "ld-linux-x86-64.so.2")); got != want {
		t.Errorf("lib64 link -> %q, want %q", got, want)
	}

	data2, err := os.ReadFile(filepath.Join(dest, "lib", "x86_64-linux-gnu", "libc.so.6"))
	if err != nil || string(data2) != "libc" {
		t.Errorf("libc through relative symlink: %q, %v", data2, err)
	}

	su, err := os.Stat(filepath.Join(dest, "usr", "bin", "su"))
	if err != nil {
		t.Fatalf("stat su: %v", err)
	}
	if su.Mode()&fs.ModeSetuid == 0 || su.Mode().Perm() != 0755 {
		t.Errorf("su mode = %s, want setuid 0755", su.Mode())
	}
	if !su.ModTime().Equal(mtime) {
		t.Errorf("su mtime = %s, want %s", su.ModTime(), mtime)
	}
	su2, err := os.Stat(filepath.Join(dest, "usr", "bin", "su2"))
	if err != nil || !os.SameFile(su, su2) {
		t.Errorf("hardlink not preserved: %v", err)
	}

	tmp, _ := os.Stat(filepath.Join(dest, "tmp"))
	if tmp.Mode()&fs.ModeSticky == 0 || tmp.Mode().Perm() != 0777 {
		t.Errorf("tmp mode = %s, want sticky 0777", tmp.Mode())
	}
	ro, _ := os.Stat(filepath.Join(dest, "ro"))
	if ro.Mode().Perm() != 0555 {
		t.Errorf("ro mode = %s, want 0555", ro.Mode())
	}
	if _, err := os.Lstat(filepath.Join(dest, "dev", "null")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("device node should be skipped, got %v", err)
	}
}

func TestExtractOtherFormats(t *testing.T) {
	raw := buildTar(t, []entry{{name: "etc/debian_version", typeflag: tar.TypeReg, mode: 0644, body: "12.5\n"}})

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(raw)
	gw.Close()

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	if err != nil {
		t.Fatal(err)
	}
	zw.Write(raw)
	zw.Close()

	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"rootfs.tar", raw, FormatTar},
		{"rootfs.tar.gz", gz.Bytes(), FormatGzip},
		{"rootfs.tar.zst", zs.Bytes(), FormatZstd},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			dest := t.TempDir()
			stats, err := Extract(context.Background(), bytes.NewReader(tt.data), dest, "download")
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if stats.Format != tt.want {
				t.Errorf("Format = %s, want %s", stats.Format, tt.want)
			}
			got, err := os.ReadFile(filepath.Join(dest, "etc", "debian_version"))
			if err != nil || string(got) != "12.5\n" {
				t.Errorf("content = %q, %v", got, err)
			}
		})
	}
}

func TestExtractTruncated(t *testing.T) {
	data := compressXz(t, buildTar(t, rootfsEntries()))

	for _, cut := range []int{8, len(data) / 2, len(data) - 4} {
		dest := t.TempDir()
		restoreWritable(t, dest)
		_, err := Extract(context.Background(), bytes.NewReader(data[:len(data)-cut]), dest, "rootfs.tar.xz")
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("cut %d bytes: expected ErrCorrupt, got %v", cut, err)
		}
	}
}

func TestExtractRejectsBreakout(t *testing.T) {
	tests := map[string][]entry{
		"dotdot": {
			{name: "../evil", typeflag: tar.TypeReg, mode: 0644, body: "x"},
		},
		"through symlink": {
			{name: "etc", typeflag: tar.TypeSymlink, linkname: "/etc"},
			{name: "etc/passwd", typeflag: tar.TypeReg, mode: 0644, body: "x"},
		},
		"hardlink outside": {
			{name: "passwd", typeflag: tar.TypeLink, linkname: "../../etc/passwd"},
		},
	}
	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "tree")
			_, err := Extract(context.Background(), bytes.NewReader(buildTar(t, entries)), dest, "x.tar")
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil")); err == nil {
				t.Error("file written outside destination")
			}
		})
	}
}

func TestExtractCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := buildTar(t, rootfsEntries())
	if _, err := Extract(ctx, bytes.NewReader(data), t.TempDir(), "x.tar"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	_, err := Extract(context.Background(), bytes.NewReader([]byte("definitely not an archive")), t.TempDir(), "blob")
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}
