package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// NewReader wraps r with the decompressor for format. Reading the returned
// stream to io.EOF means the decompressor saw its own end-of-stream marker;
// a truncated input surfaces as an error instead.
func NewReader(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, corrupt("xz header: %w", err)
		}
		return io.NopCloser(xr), nil
	case FormatGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, corrupt("gzip header: %w", err)
		}
		return gr, nil
	case FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, corrupt("zstd header: %w", err)
		}
		return zr.IOReadCloser(), nil
	case FormatTar:
		return io.NopCloser(r), nil
	default:
		return nil, corrupt("unrecognized archive format")
	}
}

// Drain consumes the rest of a decompressed stream, confirming that it ends
// cleanly. Bytes after the tar end-of-archive marker are ignored.
func Drain(r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return corrupt("stream did not end cleanly: %w", err)
	}
	return nil
}

func describe(format Format) string {
	return fmt.Sprintf("%s archive", format)
}
