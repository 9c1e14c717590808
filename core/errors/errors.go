// Package errors provides the error kinds reported while reading, aligning and
// writing vertical-format streams.
//
// Every kind is a struct carrying enough context to locate the fault (stream
// label, 1-based line number, offending content) and unwraps to a sentinel so
// callers can branch with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for each error kind
var (
	// ErrMalformedLine indicates a line that matches neither grammar, or broken nesting
	ErrMalformedLine = errors.New("malformed line")
	// ErrFieldCount indicates a token line whose field count differs from its stream's
	ErrFieldCount = errors.New("field count mismatch")
	// ErrAlignment indicates streams disagreeing at the same alignment unit
	ErrAlignment = errors.New("alignment mismatch")
	// ErrUnequalLengths indicates streams ending at different positions
	ErrUnequalLengths = errors.New("unequal lengths")
	// ErrSource indicates an I/O fault while opening or reading an input
	ErrSource = errors.New("source error")
	// ErrSink indicates an I/O fault while writing the output
	ErrSink = errors.New("sink error")
)

// maxContent bounds how much of an offending line ends up in a message.
const maxContent = 80

// StreamState describes where one stream stands when an error is raised.
type StreamState struct {
	Index int    // Stream index, 0..N-1
	Label string // Human-readable label, usually the source path
	Line  int    // 1-based line number of the current record
	Kind  string // "open", "close", "empty", "token" or "eof"
	Name  string // Structure name, empty for tokens and eof
}

func (s StreamState) String() string {
	var what string
	switch s.Kind {
	case "open":
		what = "<" + s.Name + ">"
	case "close":
		what = "</" + s.Name + ">"
	case "empty":
		what = "<" + s.Name + "/>"
	case "eof":
		what = "end of stream"
	default:
		what = s.Kind
	}
	return fmt.Sprintf("stream %d (%s) line %d: %s", s.Index, s.Label, s.Line, what)
}

// MalformedLineError represents a line that cannot be classified, or a
// structural tag that breaks the nesting of its own stream.
type MalformedLineError struct {
	Label   string // Stream label, empty when raised by the bare classifier
	Line    int    // 1-based line number, 0 when unknown
	Content string // Offending line
	Message string // What is wrong with it
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line%s: %s: %q", location(e.Label, e.Line), e.Message, clip(e.Content))
}

func (e *MalformedLineError) Unwrap() error {
	return ErrMalformedLine
}

// FieldCountError represents a token line whose width differs from the width
// established for its stream.
type FieldCountError struct {
	Label   string
	Line    int
	Want    int
	Got     int
	Content string
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("field count mismatch%s: want %d fields, got %d: %q",
		location(e.Label, e.Line), e.Want, e.Got, clip(e.Content))
}

func (e *FieldCountError) Unwrap() error {
	return ErrFieldCount
}

// AlignmentError represents streams that disagree at one alignment unit,
// either on structural-vs-token or on structure name and direction.
type AlignmentError struct {
	Unit    int64         // 1-based alignment unit
	Streams []StreamState // State of every stream at that unit
}

func (e *AlignmentError) Error() string {
	parts := make([]string, len(e.Streams))
	for i, s := range e.Streams {
		parts[i] = s.String()
	}
	return fmt.Sprintf("alignment mismatch at unit %d: %s", e.Unit, strings.Join(parts, "; "))
}

func (e *AlignmentError) Unwrap() error {
	return ErrAlignment
}

// UnequalLengthsError represents streams that reached end of stream while
// others still hold records.
type UnequalLengthsError struct {
	Unit      int64
	Ended     []StreamState
	Remaining []StreamState
}

func (e *UnequalLengthsError) Error() string {
	ended := make([]string, len(e.Ended))
	for i, s := range e.Ended {
		ended[i] = fmt.Sprintf("stream %d (%s) after %d lines", s.Index, s.Label, s.Line)
	}
	remaining := make([]string, len(e.Remaining))
	for i, s := range e.Remaining {
		remaining[i] = s.String()
	}
	return fmt.Sprintf("unequal lengths at unit %d: ended early: %s; still running: %s",
		e.Unit, strings.Join(ended, ", "), strings.Join(remaining, "; "))
}

func (e *UnequalLengthsError) Unwrap() error {
	return ErrUnequalLengths
}

// SourceError represents an I/O fault on an input stream.
type SourceError struct {
	Label string // Stream label
	Line  int    // Last line read successfully
	Op    string // Operation being performed (e.g., "open", "read")
	Err   error  // Underlying error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: failed to %s after line %d: %v", e.Label, e.Op, e.Line, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSource, e.Err}
}

// SinkError represents an I/O fault on the output.
type SinkError struct {
	Label   string // Destination label
	Records int64  // Records accepted before the fault
	Op      string // "write", "flush" or "close"
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: failed to %s after %d records: %v", e.Label, e.Op, e.Records, e.Err)
}

func (e *SinkError) Unwrap() []error {
	return []error{ErrSink, e.Err}
}

// Helper functions for creating common errors

// NewMalformed creates a MalformedLineError without stream context.
func NewMalformed(content, message string) *MalformedLineError {
	return &MalformedLineError{
		Content: content,
		Message: message,
	}
}

// NewSource creates a SourceError
func NewSource(label string, line int, op string, err error) *SourceError {
	return &SourceError{
		Label: label,
		Line:  line,
		Op:    op,
		Err:   err,
	}
}

// NewSink creates a SinkError
func NewSink(label string, records int64, op string, err error) *SinkError {
	return &SinkError{
		Label:   label,
		Records: records,
		Op:      op,
		Err:     err,
	}
}

// IsDataError reports whether err is caused by the content of the inputs
// rather than by I/O.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMalformedLine) ||
		errors.Is(err, ErrFieldCount) ||
		errors.Is(err, ErrAlignment) ||
		errors.Is(err, ErrUnequalLengths)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func location(label string, line int) string {
	switch {
	case label != "" && line > 0:
		return fmt.Sprintf(" in %s at line %d", label, line)
	case label != "":
		return " in " + label
	case line > 0:
		return fmt.Sprintf(" at line %d", line)
	}
	return ""
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxContent {
		return s
	}
	r := []rune(s)
	return string(r[:maxContent]) + "..."
}
