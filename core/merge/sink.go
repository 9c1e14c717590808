package merge

import (
	"io"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/digest"
)

// sink is an output file with a record writer and a digest of the text
// written to it.
type sink struct {
	path  string
	label string
	file  *archive.Writer
	hash  *digest.Hasher
	w     *vertical.Writer
}

type sinkOptions struct {
	delimiter  string
	bufferSize int
	flushEach  bool
	stdout     io.Writer
}

func openSink(path string, opts sinkOptions) (*sink, error) {
	label := streamLabel(path, "stdout")
	f, err := archive.NewWriter(path, opts.stdout)
	if err != nil {
		return nil, verrors.NewSink(label, 0, "open", err)
	}
	s := &sink{path: path, label: label, file: f, hash: digest.New()}
	s.w = vertical.NewWriter(digest.TeeWriter(f, s.hash), vertical.WriterOptions{
		Label:      label,
		Delimiter:  opts.delimiter,
		BufferSize: opts.bufferSize,
		FlushEach:  opts.flushEach,
	})
	return s, nil
}

// close finishes the file. It is safe to call more than once.
func (s *sink) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return verrors.NewSink(s.label, s.w.Records(), "close", err)
	}
	return nil
}

func (s *sink) report() StreamReport {
	return StreamReport{
		Label:  s.label,
		Path:   s.path,
		Lines:  s.w.Records(),
		Bytes:  s.hash.Size(),
		Digest: s.hash.Sum(),
	}
}
