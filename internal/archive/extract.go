// Package archive unpacks compressed rootfs tarballs onto disk.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrCorrupt marks failures caused by the archive content rather than the
// local filesystem.
var ErrCorrupt = errors.New("corrupt archive")

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, fmt.Errorf(format, args...))
}

// Stats summarises an extraction
type Stats struct {
	Format    Format
	Entries   int
	Files     int
	Dirs      int
	Symlinks  int
	Hardlinks int
	Skipped   int
	Bytes     int64
}

// Extract decompresses r and places its tar content under dest. name is only
// used as a hint when the format cannot be sniffed.
func Extract(ctx context.Context, r io.Reader, dest, name string) (*Stats, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	format, err := Sniff(br, name)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Extracting %s into %s", describe(format), dest)

	dec, err := NewReader(br, format)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	stats, err := Untar(ctx, dec, dest)
	if err != nil {
		return nil, err
	}
	stats.Format = format

	if err := Drain(dec); err != nil {
		return nil, err
	}
	return stats, nil
}

type dirAttrs struct {
	path  string
	mode  fs.FileMode
	mtime time.Time
}

type placer struct {
	base  string
	chown bool
	dirs  map[string]bool
	// directory attributes are applied after all children are written
	deferred []dirAttrs
	stats    Stats
}

// Untar places every entry of the tar stream r under dest.
//
// Symlinks are written verbatim and may point anywhere, including absolute
// targets that only make sense inside the rootfs. No entry may be placed
// through a symlink, and hardlinks must point inside dest. Device nodes are
// skipped. Directories are kept writable until the end of the stream and
// then receive their recorded mode and mtime.
func Untar(ctx context.Context, r io.Reader, dest string) (*Stats, error) {
	base, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}

	p := &placer{
		base:  base,
		chown: os.Geteuid() == 0,
		dirs:  map[string]bool{base: true},
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt("reading tar header: %w", err)
		}

		if err := p.place(hdr, tr); err != nil {
			return nil, fmt.Errorf("placing %q: %w", hdr.Name, err)
		}
		p.stats.Entries++
	}

	for i := len(p.deferred) - 1; i >= 0; i-- {
		d := p.deferred[i]
		if err := os.Chmod(d.path, d.mode); err != nil {
			return nil, err
		}
		if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			return nil, err
		}
	}

	return &p.stats, nil
}

// cleanName turns a tar entry name into a slash separated path relative to
// the base. "" means the base itself.
func cleanName(name string) (string, error) {
	name = strings.TrimLeft(name, "/")
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", nil
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", corrupt("path escapes archive root: %q", name)
		}
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

func entryMode(hdr *tar.Header) fs.FileMode {
	return hdr.FileInfo().Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

func (p *placer) place(hdr *tar.Header, body io.Reader) error {
	rel, err := cleanName(hdr.Name)
	if err != nil {
		return err
	}
	if rel == "" {
		if hdr.Typeflag == tar.TypeDir {
			p.deferred = append(p.deferred, dirAttrs{p.base, entryMode(hdr), hdr.ModTime})
		}
		return nil
	}

	target := filepath.Join(p.base, filepath.FromSlash(rel))
	if err := p.ensureParents(target); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := p.placeDir(target); err != nil {
			return err
		}
		p.deferred = append(p.deferred, dirAttrs{target, entryMode(hdr), hdr.ModTime})
		p.stats.Dirs++
		return p.lchown(target, hdr)

	case tar.TypeReg:
		if err := p.clear(target); err != nil {
			return err
		}
		n, err := writeFile(target, body)
		if err != nil {
			return err
		}
		p.stats.Bytes += n
		p.stats.Files++
		if err := p.lchown(target, hdr); err != nil {
			return err
		}
		if err := os.Chmod(target, entryMode(hdr)); err != nil {
			return err
		}
		return os.Chtimes(target, hdr.ModTime, hdr.ModTime)

	case tar.TypeSymlink:
		if err := p.clear(target); err != nil {
			return err
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return err
		}
		p.stats.Symlinks++
		if err := p.lchown(target, hdr); err != nil {
			return err
		}
		ts := []unix.Timespec{unix.NsecToTimespec(hdr.ModTime.UnixNano()), unix.NsecToTimespec(hdr.ModTime.UnixNano())}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, target, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			logrus.Debugf("Cannot set symlink time on %s: %v", target, err)
		}
		return nil

	case tar.TypeLink:
		linkRel, err := cleanName(hdr.Linkname)
		if err != nil || linkRel == "" {
			return corrupt("invalid hardlink %q -> %q", hdr.Name, hdr.Linkname)
		}
		source := filepath.Join(p.base, filepath.FromSlash(linkRel))
		if err := p.ensureParents(source); err != nil {
			return err
		}
		if err := p.clear(target); err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return err
		}
		p.stats.Hardlinks++
		return nil

	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		logrus.Debugf("Skipping special file %s", rel)
		p.stats.Skipped++
		return nil

	default:
		logrus.Debugf("Skipping unsupported entry %s (type %q)", rel, hdr.Typeflag)
		p.stats.Skipped++
		return nil
	}
}

// ensureParents creates missing ancestors of target and refuses to traverse
// a symlink on the way.
func (p *placer) ensureParents(target string) error {
	parent := filepath.Dir(target)
	if p.dirs[parent] {
		return nil
	}

	rel, err := filepath.Rel(p.base, parent)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return corrupt("path escapes archive root: %q", target)
	}

	cur := p.base
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		if p.dirs[cur] {
			continue
		}
		info, err := os.Lstat(cur)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(cur, 0755); err != nil {
				return err
			}
		case err != nil:
			return err
		case info.Mode()&fs.ModeSymlink != 0:
			return corrupt("refusing to traverse symlink at %q", cur)
		case !info.IsDir():
			return corrupt("parent %q is not a directory", cur)
		}
		p.dirs[cur] = true
	}
	return nil
}

func (p *placer) placeDir(target string) error {
	info, err := os.Lstat(target)
	if err == nil {
		if info.IsDir() {
			p.dirs[target] = true
			return os.Chmod(target, 0755)
		}
		if err := os.Remove(target); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Mkdir(target, 0755); err != nil {
		return err
	}
	p.dirs[target] = true
	return nil
}

// clear removes a non-directory left by an earlier entry of the same name.
func (p *placer) clear(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return corrupt("entry would replace directory %q", target)
	}
	return os.Remove(target)
}

func (p *placer) lchown(target string, hdr *tar.Header) error {
	if !p.chown {
		return nil
	}
	return os.Lchown(target, hdr.Uid, hdr.Gid)
}

// sourceReader remembers read errors so they can be told apart from write
// errors after io.Copy.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}

func writeFile(target string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return 0, err
	}
	src := &sourceReader{r: body}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if src.err != nil {
		return n, corrupt("reading entry data: %w", src.err)
	}
	return n, err
}
