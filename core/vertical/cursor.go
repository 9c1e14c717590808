package vertical

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/digest"
)

// DefaultMaxLineSize bounds a single line when CursorOptions leaves it unset.
const DefaultMaxLineSize = 1 << 20

const bom = "\ufeff"

// Source describes an input stream.
type Source struct {
	// Path of the file, "-" for standard input. A .gz, .xz or .zst suffix
	// selects decompression.
	Path string
	// Label used in diagnostics. Defaults to Path.
	Label string
	// Encoding of the file, e.g. "iso-8859-2". Empty means UTF-8.
	Encoding string
	// Stdin is read for the path "-". Nil means os.Stdin.
	Stdin io.Reader
}

// CursorOptions configures a Cursor.
type CursorOptions struct {
	// MaxLineSize is the longest line accepted, in bytes.
	MaxLineSize int
	// Digest enables a BLAKE3 digest of the text consumed.
	Digest bool
}

// Cursor streams the records of one input, one line at a time.
//
// Peek returns the current record without consuming it and Advance moves
// past it. The underlying reader is closed as soon as the end of the stream
// or an error is reached, and by Close, which owners defer.
type Cursor struct {
	index   int
	label   string
	cls     *Classifier
	r       *bufio.Reader
	closer  io.Closer
	hasher  *digest.Hasher
	maxLine int

	cur  Record
	line int
	done bool
	err  error
	open []string
}

// NewCursor creates a cursor over r. If r is an io.Closer the cursor closes
// it when finished.
func NewCursor(index int, label string, r io.Reader, cls *Classifier, opts CursorOptions) *Cursor {
	closer, _ := r.(io.Closer)
	return newCursor(index, label, r, closer, cls, opts)
}

// OpenCursor opens src and creates a cursor over it.
func OpenCursor(index int, src Source, cls *Classifier, opts CursorOptions) (*Cursor, error) {
	label := src.Label
	if label == "" {
		label = src.Path
	}
	ar, err := archive.NewReader(src.Path, src.Stdin)
	if err != nil {
		return nil, verrors.NewSource(label, 0, "open", err)
	}
	r, err := archive.DecodeCharset(ar, src.Encoding)
	if err != nil {
		ar.Close()
		return nil, verrors.NewSource(label, 0, "decode", err)
	}
	return newCursor(index, label, r, ar, cls, opts), nil
}

func newCursor(index int, label string, r io.Reader, closer io.Closer, cls *Classifier, opts CursorOptions) *Cursor {
	c := &Cursor{
		index:   index,
		label:   label,
		cls:     cls,
		closer:  closer,
		maxLine: opts.MaxLineSize,
	}
	if c.maxLine <= 0 {
		c.maxLine = DefaultMaxLineSize
	}
	if opts.Digest {
		c.hasher = digest.New()
		r = digest.TeeReader(r, c.hasher)
	}
	c.r = bufio.NewReaderSize(r, 64<<10)
	return c
}

// Index returns the stream index.
func (c *Cursor) Index() int { return c.index }

// Label returns the stream label.
func (c *Cursor) Label() string { return c.label }

// Line returns the 1-based line number of the current record. At the end of
// the stream it is the number of lines read.
func (c *Cursor) Line() int { return c.line }

// Peek returns the current record. It returns io.EOF at the end of the
// stream and the same error on every call after a failure.
func (c *Cursor) Peek() (Record, error) {
	c.fill()
	if c.err != nil {
		return nil, c.err
	}
	if c.cur == nil {
		return nil, io.EOF
	}
	return c.cur, nil
}

// Advance consumes the current record.
func (c *Cursor) Advance() {
	c.cur = nil
}

// Done reports whether the end of the stream has been reached.
func (c *Cursor) Done() bool {
	return c.done && c.cur == nil
}

// Digest returns the hex BLAKE3 digest of the text read, or "" if digests are
// disabled or the stream has not been read to the end.
func (c *Cursor) Digest() string {
	if c.hasher == nil || !c.done {
		return ""
	}
	return c.hasher.Sum()
}

// Unclosed returns the structures still open, outermost first.
func (c *Cursor) Unclosed() []string {
	return append([]string(nil), c.open...)
}

// CheckClosed returns a MalformedLineError if the stream ended inside a
// structure, and nil otherwise or before the end is reached.
func (c *Cursor) CheckClosed() error {
	if !c.done || len(c.open) == 0 {
		return nil
	}
	top := c.open[len(c.open)-1]
	return c.malformed("<"+top+">", fmt.Sprintf("end of stream inside <%s>", top))
}

// Close releases the underlying reader. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

func (c *Cursor) fill() {
	if c.cur != nil || c.done || c.err != nil {
		return
	}
	for {
		text, err := c.readLine()
		if err == io.EOF {
			c.finish()
			return
		}
		if err != nil {
			c.fail(err)
			return
		}
		c.line++
		if c.line == 1 {
			text = strings.TrimPrefix(text, bom)
		}
		if c.cls.SkipBlank() && strings.TrimSuffix(text, "\r") == "" {
			continue
		}

		rec, err := c.cls.Classify(text)
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.nest(rec, text); err != nil {
			c.fail(err)
			return
		}
		c.cur = rec
		return
	}
}

// nest tracks open structures and rejects closes that do not match the
// innermost open one.
func (c *Cursor) nest(rec Record, text string) error {
	switch r := rec.(type) {
	case *StructOpen:
		if !r.SelfClosing {
			c.open = append(c.open, r.Name)
		}
	case *StructClose:
		if len(c.open) == 0 {
			return c.malformed(text, fmt.Sprintf("</%s> closes nothing", r.Name))
		}
		if top := c.open[len(c.open)-1]; top != r.Name {
			return c.malformed(text, fmt.Sprintf("</%s> does not match open <%s>", r.Name, top))
		}
		c.open = c.open[:len(c.open)-1]
	}
	return nil
}

// finish marks the end of the stream. Structures left open are reported by
// CheckClosed, so that owners can first tell a short stream from a broken one.
func (c *Cursor) finish() {
	c.done = true
	c.Close()
}

// fail records a sticky error and releases the reader.
func (c *Cursor) fail(err error) {
	var me *verrors.MalformedLineError
	var se *verrors.SourceError
	switch {
	case errors.As(err, &me):
		if me.Label == "" {
			me.Label = c.label
		}
		if me.Line == 0 {
			me.Line = c.line
		}
	case errors.As(err, &se):
	default:
		err = verrors.NewSource(c.label, c.line, "read", err)
	}
	c.err = err
	c.Close()
}

func (c *Cursor) malformed(content, message string) error {
	return &verrors.MalformedLineError{
		Label:   c.label,
		Line:    c.line,
		Content: content,
		Message: message,
	}
}

// readLine returns the next line without its line terminator, or io.EOF.
// The length limit applies to the content, not the terminator.
func (c *Cursor) readLine() (string, error) {
	var buf []byte
	for {
		frag, err := c.r.ReadSlice('\n')
		buf = append(buf, frag...)
		if err == bufio.ErrBufferFull {
			if len(buf) > c.maxLine+2 {
				return "", c.tooLong(buf)
			}
			continue
		}
		if err != nil && (err != io.EOF || len(buf) == 0) {
			return "", err
		}
		break
	}
	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > c.maxLine {
		return "", c.tooLong(buf)
	}
	return line, nil
}

func (c *Cursor) tooLong(buf []byte) error {
	c.line++
	return c.malformed(string(buf), fmt.Sprintf("line longer than %d bytes", c.maxLine))
}
