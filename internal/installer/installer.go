// Package installer provisions a rootfs tree: it downloads the image into a
// private staging directory next to the store, verifies and extracts it,
// marks the result complete and publishes it with a single rename.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rtbox/rtbox/internal/archive"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/rtbox/rtbox/internal/sentinel"
	"github.com/rtbox/rtbox/internal/utils"
	"github.com/sirupsen/logrus"
)

// Name prefixes of the private working directories inside the store root.
const (
	StagingPrefix = ".staging-"
	TrashPrefix   = ".trash-"
)

// Source is the download collaborator.
type Source interface {
	// Open streams rawURL and reports its size, -1 if unknown.
	Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error)
	// LatestBuild names the newest build directory below indexURL.
	LatestBuild(ctx context.Context, indexURL string) (string, error)
}

// Verifier checks a downloaded archive before it is extracted.
type Verifier interface {
	Verify(ctx context.Context, archiveURL, localPath, sum string) error
}

type (
	// Installer downloads and publishes rootfs trees
	Installer struct {
		source        Source
		verifier      Verifier
		imageServer   string
		now           func() time.Time
		beforePublish func(tree string) error
	}

	// Option configures an Installer during construction.
	Option func(*Installer)
)

// Request describes one installation
type Request struct {
	Distro  models.Distro
	Arch    models.Architecture
	RootDir string
	// Replace swaps out an existing completed tree instead of deferring to it.
	Replace bool
}

// Result describes a published tree
type Result struct {
	Path      string
	SourceURL string
	SHA256    string
	Stats     *archive.Stats
	Replaced  bool
}

// WithVerifier checks every download before extraction.
func WithVerifier(v Verifier) Option {
	return func(i *Installer) {
		i.verifier = v
	}
}

// WithImageServer sets the value substituted for {server} in URL templates.
func WithImageServer(server string) Option {
	return func(i *Installer) {
		i.imageServer = server
	}
}

// New creates an Installer fetching from source.
func New(source Source, opts ...Option) *Installer {
	i := &Installer{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// StagingName returns a fresh staging directory name for distro.
func StagingName(distro string) string {
	return StagingPrefix + distro + "-" + nonce()
}

func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Install provisions req.Distro under req.RootDir/<name>. On any failure the
// staging directory is removed and the target path is left as it was.
func (i *Installer) Install(ctx context.Context, req Request) (*Result, error) {
	name := req.Distro.Name

	archiveURL, err := i.resolveURL(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := utils.EnsureDir(req.RootDir); err != nil {
		return nil, ioError(name, "create store", err)
	}
	staging := filepath.Join(req.RootDir, StagingName(name))
	if err := os.Mkdir(staging, 0700); err != nil {
		return nil, ioError(name, "create staging", err)
	}
	defer func() {
		if err := utils.RemoveTree(staging); err != nil {
			logrus.Warnf("Failed to clean up %s: %v", staging, err)
		}
	}()

	logrus.Infof("Downloading %s", archiveURL)
	archivePath := filepath.Join(staging, path.Base(archiveURL))
	sum, err := i.download(ctx, name, archiveURL, archivePath)
	if err != nil {
		return nil, err
	}

	if i.verifier != nil {
		if err := i.verifier.Verify(ctx, archiveURL, archivePath, sum); err != nil {
			return nil, withDistro(err, name)
		}
	}

	tree := filepath.Join(staging, "tree")
	logrus.Infof("Extracting %s", path.Base(archiveURL))
	stats, err := extract(ctx, name, archivePath, tree)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Extracted %d entries (%d bytes, %d skipped)", stats.Entries, stats.Bytes, stats.Skipped)

	// the archive is no longer needed, free the space before publishing
	if err := os.Remove(archivePath); err != nil {
		logrus.Debugf("Failed to remove %s: %v", archivePath, err)
	}

	rec := sentinel.Record{
		Distro:       name,
		Architecture: req.Arch,
		SourceURL:    archiveURL,
		SHA256:       sum,
		InstalledAt:  i.now().UTC(),
	}
	if err := sentinel.Write(tree, rec); err != nil {
		return nil, ioError(name, "mark tree complete", err)
	}

	if i.beforePublish != nil {
		if err := i.beforePublish(tree); err != nil {
			return nil, err
		}
	}

	target := filepath.Join(req.RootDir, name)
	replaced, err := i.publish(req, tree, target)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:      target,
		SourceURL: archiveURL,
		SHA256:    sum,
		Stats:     stats,
		Replaced:  replaced,
	}, nil
}

func (i *Installer) resolveURL(ctx context.Context, req Request) (string, error) {
	u, err := req.Distro.ResolveURL(i.imageServer, req.Arch)
	if err != nil {
		return "", err
	}
	idx := strings.Index(u, models.PlaceholderBuild)
	if idx < 0 {
		return u, nil
	}
	build, err := i.source.LatestBuild(ctx, u[:idx])
	if err != nil {
		return "", withDistro(err, req.Distro.Name)
	}
	return strings.Replace(u, models.PlaceholderBuild, build, 1), nil
}

// readTracker remembers read errors so they can be told apart from write
// errors after io.Copy.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func (i *Installer) download(ctx context.Context, name, archiveURL, dest string) (string, error) {
	body, size, err := i.source.Open(ctx, archiveURL)
	if err != nil {
		return "", withDistro(err, name)
	}
	defer body.Close()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", ioError(name, "create download file", err)
	}
	defer f.Close()

	h := sha256.New()
	src := &readTracker{r: body}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if src.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", models.NewError(models.ErrNetwork, name, "download interrupted after %d bytes: %w", n, src.err)
	}
	if err != nil {
		return "", ioError(name, "write download", err)
	}
	if size >= 0 && n != size {
		return "", models.NewError(models.ErrNetwork, name, "download truncated: got %d of %d bytes", n, size)
	}
	if err := f.Close(); err != nil {
		return "", ioError(name, "write download", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extract(ctx context.Context, name, archivePath, tree string) (*archive.Stats, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, ioError(name, "open download", err)
	}
	defer f.Close()

	stats, err := archive.Extract(ctx, f, tree, filepath.Base(archivePath))
	switch {
	case err == nil:
		return stats, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, archive.ErrCorrupt):
		return nil, models.NewError(models.ErrCorruptArchive, name, "%w", err)
	default:
		return nil, ioError(name, "extract", err)
	}
}

// publish moves the staged tree to target. A completed tree already at
// target wins unless the request asks for replacement; an unmarked leftover
// is always replaced.
func (i *Installer) publish(req Request, tree, target string) (bool, error) {
	name := req.Distro.Name

	err := os.Rename(tree, target)
	if err == nil {
		logrus.Debugf("Published %s", target)
		return false, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, ioError(name, "publish", err)
	}

	if sentinel.Exists(target) && !req.Replace {
		return false, models.NewError(models.ErrInstallRace, name,
			"%s was installed by another process", target)
	}

	// Atomically trade places, leaving the old tree at the staged path where
	// the deferred staging cleanup removes it.
	err = exchange(tree, target)
	if err == nil {
		logrus.Debugf("Replaced %s", target)
		return true, nil
	}
	logrus.Debugf("Atomic exchange unavailable (%v), moving %s aside", err, target)

	trash := filepath.Join(req.RootDir, TrashPrefix+name+"-"+nonce())
	if err := os.Rename(target, trash); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, ioError(name, "move old tree aside", err)
	}
	defer func() {
		if err := utils.RemoveTree(trash); err != nil {
			logrus.Warnf("Failed to remove %s: %v", trash, err)
		}
	}()

	if err := os.Rename(tree, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, models.NewError(models.ErrInstallRace, name,
				"%s was installed by another process", target)
		}
		return false, ioError(name, "publish", err)
	}
	return true, nil
}

func ioError(name, op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return models.NewError(models.ErrIO, name, "%s: disk full: %w", op, err)
	}
	return models.NewError(models.ErrIO, name, "%s: %w", op, err)
}

// withDistro fills in the distro name of a categorized error.
func withDistro(err error, name string) error {
	var re *models.RtboxError
	if errors.As(err, &re) && re.Distro == "" {
		re.Distro = name
	}
	return err
}
