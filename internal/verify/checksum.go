package verify

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrChecksumMismatch indicates the computed SHA256 does not match the published one.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumError provides details about a checksum verification failure
type ChecksumError struct {
	Filename string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s: expected %s, got %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ParseChecksums parses sha256sum output: "<hex>  <name>" or, in binary
// mode, "<hex> *<name>". Malformed lines are skipped.
func ParseChecksums(data []byte) map[string]string {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || !isHexSHA256(fields[0]) {
			continue
		}
		name := strings.TrimPrefix(fields[1], "*")
		sums[name] = strings.ToLower(fields[0])
	}
	return sums
}

func isHexSHA256(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// CompareChecksum checks got against the published digest for name.
func CompareChecksum(name, expected, got string) error {
	if !strings.EqualFold(expected, got) {
		return &ChecksumError{Filename: name, Expected: expected, Got: got}
	}
	return nil
}
