package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Writer writes a possibly compressed file.
type Writer struct {
	io.Writer
	file       io.Closer
	compressor io.Closer
}

// NewWriter creates path, compressing according to its suffix. Parent
// directories are created as needed. An existing file is truncated. The path
// "-" writes to stdout, or to os.Stdout when stdout is nil; it is never
// closed.
func NewWriter(path string, stdout io.Writer) (*Writer, error) {
	if path == StdioPath {
		if stdout == nil {
			stdout = os.Stdout
		}
		return &Writer{Writer: stdout}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	w := &Writer{Writer: f, file: f}
	switch CompressionFor(path) {
	case CompressionGzip:
		gw := pgzip.NewWriter(f)
		w.Writer = gw
		w.compressor = gw
	case CompressionXZ:
		xw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		w.Writer = xw
		w.compressor = xw
	case CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		w.Writer = zw
		w.compressor = zw
	}
	return w, nil
}

// Close finishes the compressed stream and closes the file. Standard output
// is left open.
func (w *Writer) Close() error {
	var errs []error
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			errs = append(errs, err)
		}
		w.compressor = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, err)
		}
		w.file = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
