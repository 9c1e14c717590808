package vertical

import (
	"bufio"
	"fmt"
	"io"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
)

// DefaultBufferSize is the output buffer size when WriterOptions leaves it unset.
const DefaultBufferSize = 64 << 10

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Label names the destination in errors.
	Label string
	// Delimiter between token fields. Defaults to a single tab.
	Delimiter string
	// BufferSize of the output buffer in bytes.
	BufferSize int
	// FlushEach flushes the buffer after every record.
	FlushEach bool
}

// Writer serializes records as vertical lines.
type Writer struct {
	w         *bufio.Writer
	label     string
	delimiter string
	flushEach bool
	records   int64
	err       error
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	delim := opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &Writer{
		w:         bufio.NewWriterSize(w, size),
		label:     opts.Label,
		delimiter: delim,
		flushEach: opts.FlushEach,
	}
}

// Records returns the number of records written.
func (w *Writer) Records() int64 { return w.records }

// Write serializes one record. Structural records read from input are
// written from their raw text, unchanged.
func (w *Writer) Write(rec Record) error {
	if w.err != nil {
		return w.err
	}
	var err error
	switch r := rec.(type) {
	case *StructOpen:
		if r.Raw != "" {
			_, err = w.w.WriteString(r.Raw)
		} else {
			_, err = w.w.WriteString(r.Tag())
		}
	case *StructClose:
		if r.Raw != "" {
			_, err = w.w.WriteString(r.Raw)
		} else {
			_, err = w.w.WriteString(r.Tag())
		}
	case *Token:
		for i, f := range r.Fields {
			if i > 0 {
				if _, err = w.w.WriteString(w.delimiter); err != nil {
					break
				}
			}
			if _, err = w.w.WriteString(f); err != nil {
				break
			}
		}
	default:
		err = fmt.Errorf("unknown record type %T", rec)
	}
	if err == nil {
		err = w.w.WriteByte('\n')
	}
	if err != nil {
		return w.fail("write", err)
	}
	w.records++
	if w.flushEach {
		return w.Flush()
	}
	return nil
}

// Flush writes any buffered data to the destination.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		return w.fail("flush", err)
	}
	return nil
}

func (w *Writer) fail(op string, err error) error {
	w.err = verrors.NewSink(w.label, w.records, op, err)
	return w.err
}
