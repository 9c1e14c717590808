// Package archive opens plain and compressed single-file streams.
// The compression is picked from the path suffix: .gz, .xz and .zst are
// decompressed (or compressed) on the fly, anything else is plain. The path
// "-" stands for standard input or standard output.
package archive

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// StdioPath designates standard input or standard output.
const StdioPath = "-"

// Compression identifies a stream compression format.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionXZ   Compression = "xz"
	CompressionZstd Compression = "zstd"
)

// CompressionFor returns the compression implied by the suffix of path.
func CompressionFor(path string) Compression {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(p, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(p, ".zst"), strings.HasSuffix(p, ".zstd"):
		return CompressionZstd
	}
	return CompressionNone
}

// Reader reads a possibly compressed file.
type Reader struct {
	io.Reader
	file         io.Closer
	decompressor io.Closer
}

// NewReader opens path for reading, decompressing it according to its suffix.
// The path "-" reads from stdin, or from os.Stdin when stdin is nil; it is
// never closed.
func NewReader(path string, stdin io.Reader) (*Reader, error) {
	if path == StdioPath {
		if stdin == nil {
			stdin = os.Stdin
		}
		return wrapReader(stdin, nil, CompressionNone)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	r, err := wrapReader(f, f, CompressionFor(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// wrapReader puts the decompressor for c in front of src. file, if set, is
// closed with the Reader.
func wrapReader(src io.Reader, file io.Closer, c Compression) (*Reader, error) {
	r := &Reader{Reader: src, file: file}
	switch c {
	case CompressionGzip:
		gzr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		r.Reader = gzr
		r.decompressor = gzr
	case CompressionXZ:
		xzr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		r.Reader = xzr // xz reader doesn't need closing
	case CompressionZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		rc := zr.IOReadCloser()
		r.Reader = rc
		r.decompressor = rc
	}
	return r, nil
}

// Close closes the decompressor and the underlying file. Standard input is
// left open.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
		r.decompressor = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		r.file = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
