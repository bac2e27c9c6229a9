package archive

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Format is the outer encoding of an image archive
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatGzip
	FormatXz
	FormatZstd
)

// String returns the string representation of Format
func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatXz:
		return "xz"
	case FormatZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Magic bytes for compression detection
var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}

	// POSIX and GNU tar headers carry "ustar" at offset 257
	tarMagic       = []byte("ustar")
	tarMagicOffset = 257
)

// headerSize is how much of the stream is inspected.
const headerSize = 512

// DetectFormat determines the archive format from its leading bytes, falling
// back to the file name's extension.
func DetectFormat(header []byte, name string) Format {
	switch {
	case bytes.HasPrefix(header, xzMagic):
		return FormatXz
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case len(header) >= tarMagicOffset+len(tarMagic) &&
		bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar
	}

	base := strings.ToLower(name)
	switch {
	case strings.HasSuffix(base, ".tar.xz"), strings.HasSuffix(base, ".txz"):
		return FormatXz
	case strings.HasSuffix(base, ".tar.zst"), strings.HasSuffix(base, ".tzst"):
		return FormatZstd
	case strings.HasSuffix(base, ".tar.gz"), strings.HasSuffix(base, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(base, ".tar"):
		return FormatTar
	}
	return FormatUnknown
}

// Sniff peeks at br without consuming it and returns the detected format.
func Sniff(br *bufio.Reader, name string) (Format, error) {
	header, err := br.Peek(headerSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	if len(header) == 0 {
		return FormatUnknown, corrupt("empty archive")
	}
	return DetectFormat(header, name), nil
}
