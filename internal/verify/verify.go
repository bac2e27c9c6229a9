// Package verify checks downloaded images against published checksums and
// detached OpenPGP signatures.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/rtbox/rtbox/internal/fetch"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// ChecksumsFile is published next to each image build.
	ChecksumsFile = "SHA256SUMS"
	// SignatureSuffix is appended to an archive URL to locate its detached signature.
	SignatureSuffix = ".asc"

	maxDocumentSize = 1 << 20
)

// Fetcher retrieves small documents.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

// Verifier checks an archive that has already been downloaded
type Verifier struct {
	fetcher Fetcher
	keyring openpgp.EntityList
}

// New creates a Verifier. A nil keyring disables signature checks.
func New(f Fetcher, keyring openpgp.EntityList) *Verifier {
	return &Verifier{fetcher: f, keyring: keyring}
}

// LoadKeyring reads an armored or binary public keyring file
func LoadKeyring(keyPath string) (openpgp.EntityList, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("keyring path is empty")
	}

	keyFile, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	defer keyFile.Close()

	// Try to parse as armored keyring first
	entityList, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		if _, serr := keyFile.Seek(0, 0); serr != nil {
			return nil, fmt.Errorf("failed to rewind keyring: %w", serr)
		}
		entityList, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in keyring")
	}
	return entityList, nil
}

// Verify checks the archive at localPath, downloaded from archiveURL and
// hashing to sum. The build's SHA256SUMS is consulted when the server
// publishes one; a signature is required only when a keyring is set.
func (v *Verifier) Verify(ctx context.Context, archiveURL, localPath, sum string) error {
	if err := v.verifyChecksum(ctx, archiveURL, sum); err != nil {
		return err
	}
	if v.keyring == nil {
		return nil
	}
	return v.verifySignature(ctx, archiveURL, localPath)
}

func (v *Verifier) verifyChecksum(ctx context.Context, archiveURL, sum string) error {
	dir, name := splitURL(archiveURL)
	data, err := v.fetcher.Fetch(ctx, dir+ChecksumsFile, maxDocumentSize)
	if err != nil {
		if fetch.IsNotFound(err) {
			logrus.Debugf("No %s published for %s, skipping checksum", ChecksumsFile, name)
			return nil
		}
		return err
	}

	expected, ok := ParseChecksums(data)[name]
	if !ok {
		logrus.Warnf("%s does not list %s, skipping checksum", ChecksumsFile, name)
		return nil
	}
	if err := CompareChecksum(name, expected, sum); err != nil {
		return models.NewError(models.ErrVerification, "", "%w", err)
	}
	logrus.Debugf("Checksum of %s verified", name)
	return nil
}

func (v *Verifier) verifySignature(ctx context.Context, archiveURL, localPath string) error {
	sig, err := v.fetcher.Fetch(ctx, archiveURL+SignatureSuffix, maxDocumentSize)
	if err != nil {
		if fetch.IsNotFound(err) {
			return models.NewError(models.ErrVerification, "", "no signature published for %s", path.Base(archiveURL))
		}
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return models.NewError(models.ErrIO, "", "failed to open archive: %w", err)
	}
	defer f.Close()

	signer, err := openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	if err != nil {
		return models.NewError(models.ErrVerification, "", "bad signature on %s: %w", path.Base(archiveURL), err)
	}
	logrus.Debugf("Signature on %s verified (key %X)", path.Base(archiveURL), signer.PrimaryKey.KeyId)
	return nil
}

// splitURL returns the URL up to and including the last slash, and the rest.
func splitURL(rawURL string) (string, string) {
	i := strings.LastIndex(rawURL, "/")
	return rawURL[:i+1], rawURL[i+1:]
}
