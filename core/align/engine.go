// Package align merges parallel vertical streams in lockstep.
//
// The Engine advances every stream by one alignment unit at a time: either a
// structural tag event, which all streams must share in name and direction,
// or a token position, where all streams must hold a token line. Structural
// records are passed through from the primary stream; token fields are
// concatenated in stream order.
//
// Any disagreement stops the merge for good. Memory use is bounded by one
// record per stream regardless of corpus size.
package align

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/logging"
)

// State of an Engine.
type State int

const (
	StateRunning State = iota
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures an Engine.
type Options struct {
	// Primary is the index of the stream whose structural tags are emitted.
	Primary int
	// Widths declares the field count of each stream. A missing or zero entry
	// is inferred from the stream's first token line.
	Widths []int
	// Logger receives progress events. Defaults to the global logger.
	Logger *slog.Logger
	// ProgressEvery logs progress every that many units. Zero disables it.
	ProgressEvery int64
}

// Stats summarizes a merge.
type Stats struct {
	Units      int64 // Alignment units merged
	Tokens     int64 // Token positions merged
	Structures int64 // Structural events merged
	Lines      []int // Lines read per stream
	Widths     []int // Field count per stream, 0 if a stream had no tokens
}

// Engine is the lockstep merge state machine. It is not safe for concurrent
// use; independent merges use independent engines.
type Engine struct {
	cursors []*vertical.Cursor
	primary int
	widths  []int
	logger  *slog.Logger
	every   int64

	state  State
	err    error
	stats  Stats
	fields []string
	recs   []vertical.Record
	start  time.Time
}

// New creates an Engine over cursors. The engine does not own the cursors;
// the caller closes them.
func New(cursors []*vertical.Cursor, opts Options) (*Engine, error) {
	if len(cursors) == 0 {
		return nil, errors.New("no input streams")
	}
	if opts.Primary < 0 || opts.Primary >= len(cursors) {
		return nil, fmt.Errorf("primary stream %d out of range [0, %d)", opts.Primary, len(cursors))
	}
	if len(opts.Widths) > len(cursors) {
		return nil, fmt.Errorf("%d widths given for %d streams", len(opts.Widths), len(cursors))
	}
	widths := make([]int, len(cursors))
	for i, w := range opts.Widths {
		if w < 0 {
			return nil, fmt.Errorf("negative width %d for stream %d", w, i)
		}
		widths[i] = w
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Engine{
		cursors: cursors,
		primary: opts.Primary,
		widths:  widths,
		logger:  logger,
		every:   opts.ProgressEvery,
		recs:    make([]vertical.Record, len(cursors)),
		start:   time.Now(),
	}, nil
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Err returns the error that moved the engine to StateFailed.
func (e *Engine) Err() error { return e.err }

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Lines = make([]int, len(e.cursors))
	for i, c := range e.cursors {
		s.Lines[i] = c.Line()
	}
	s.Widths = append([]int(nil), e.widths...)
	return s
}

// Next merges one alignment unit and returns the merged record. It returns
// io.EOF once every stream has ended with no structure left open, and the
// failure on every call after the engine has failed. A stream that ends
// while others still hold records is an unequal-lengths failure, even when
// it ends inside a structure.
func (e *Engine) Next() (vertical.Record, error) {
	switch e.state {
	case StateDone:
		return nil, io.EOF
	case StateFailed:
		return nil, e.err
	}

	unit := e.stats.Units + 1
	ended := 0
	for i, c := range e.cursors {
		rec, err := c.Peek()
		switch {
		case err == io.EOF:
			e.recs[i] = nil
			ended++
		case err != nil:
			return nil, e.fail(err)
		default:
			e.recs[i] = rec
		}
	}

	if ended > 0 && ended < len(e.cursors) {
		return nil, e.fail(e.unequal(unit))
	}
	if ended == len(e.cursors) {
		for _, c := range e.cursors {
			if err := c.CheckClosed(); err != nil {
				return nil, e.fail(err)
			}
		}
		e.state = StateDone
		return nil, io.EOF
	}

	merged, err := e.merge(unit)
	if err != nil {
		return nil, e.fail(err)
	}
	for _, c := range e.cursors {
		c.Advance()
	}
	e.stats.Units++
	if e.every > 0 && e.stats.Units%e.every == 0 {
		logging.MergeProgress(e.logger, e.stats.Units, e.stats.Tokens, time.Since(e.start))
	}
	return merged, nil
}

// Run merges every unit into w until the streams end or an error occurs.
// The context is checked before each unit. Records merged before a failure
// are flushed to w and left in place.
func (e *Engine) Run(ctx context.Context, w *vertical.Writer) (Stats, error) {
	for {
		if err := ctx.Err(); err != nil {
			_ = w.Flush()
			return e.Stats(), e.fail(err)
		}
		rec, err := e.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = w.Flush()
			return e.Stats(), err
		}
		if err := w.Write(rec); err != nil {
			return e.Stats(), e.fail(err)
		}
	}
	if err := w.Flush(); err != nil {
		return e.Stats(), e.fail(err)
	}
	return e.Stats(), nil
}

// merge checks that the peeked records form one unit and builds the output.
func (e *Engine) merge(unit int64) (vertical.Record, error) {
	switch first := e.recs[e.primary].(type) {
	case *vertical.Token:
		e.fields = e.fields[:0]
		for i, rec := range e.recs {
			tok, ok := rec.(*vertical.Token)
			if !ok {
				return nil, e.mismatch(unit)
			}
			if err := e.checkWidth(i, tok); err != nil {
				return nil, err
			}
			e.fields = append(e.fields, tok.Fields...)
		}
		e.stats.Tokens++
		fields := make([]string, len(e.fields))
		copy(fields, e.fields)
		return &vertical.Token{Fields: fields}, nil

	case *vertical.StructOpen, *vertical.StructClose:
		kind, name := first.Kind(), vertical.Name(first)
		for _, rec := range e.recs {
			if rec.Kind() != kind || vertical.Name(rec) != name {
				return nil, e.mismatch(unit)
			}
		}
		e.stats.Structures++
		return first, nil
	}
	return nil, fmt.Errorf("unexpected record type %T", e.recs[e.primary])
}

// checkWidth fixes a stream's width on its first token and enforces it after.
func (e *Engine) checkWidth(i int, tok *vertical.Token) error {
	if e.widths[i] == 0 {
		e.widths[i] = len(tok.Fields)
		return nil
	}
	if len(tok.Fields) == e.widths[i] {
		return nil
	}
	c := e.cursors[i]
	return &verrors.FieldCountError{
		Label:   c.Label(),
		Line:    c.Line(),
		Want:    e.widths[i],
		Got:     len(tok.Fields),
		Content: joinFields(tok.Fields),
	}
}

func (e *Engine) mismatch(unit int64) error {
	states := make([]verrors.StreamState, len(e.cursors))
	for i := range e.cursors {
		states[i] = e.streamState(i)
	}
	return &verrors.AlignmentError{Unit: unit, Streams: states}
}

func (e *Engine) unequal(unit int64) error {
	err := &verrors.UnequalLengthsError{Unit: unit}
	for i := range e.cursors {
		if e.recs[i] == nil {
			err.Ended = append(err.Ended, e.streamState(i))
		} else {
			err.Remaining = append(err.Remaining, e.streamState(i))
		}
	}
	return err
}

func (e *Engine) streamState(i int) verrors.StreamState {
	c := e.cursors[i]
	s := verrors.StreamState{Index: c.Index(), Label: c.Label(), Line: c.Line(), Kind: "eof"}
	if rec := e.recs[i]; rec != nil {
		s.Kind = string(rec.Kind())
		s.Name = vertical.Name(rec)
	}
	return s
}

func (e *Engine) fail(err error) error {
	if e.state != StateFailed {
		e.state = StateFailed
		e.err = err
	}
	return e.err
}

func joinFields(fields []string) string {
	n := 0
	for _, f := range fields {
		n += len(f) + 1
	}
	b := make([]byte, 0, n)
	for i, f := range fields {
		if i > 0 {
			b = append(b, '\t')
		}
		b = append(b, f...)
	}
	return string(b)
}
