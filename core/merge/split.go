package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/logging"
	"github.com/FocuswithJustin/vertmerge/internal/validation"
)

// SplitOutput is one stream cut out of a merged file.
type SplitOutput struct {
	Path  string
	Width int
}

// SplitJob cuts a merged file back into its streams. Every structural line
// goes to every output; token lines are cut at the output widths, in order.
type SplitJob struct {
	Input   Input
	Outputs []SplitOutput
	Format
	BufferSize int
	FlushEach  bool
	Stdio
}

// Validate checks the job without touching the filesystem.
func (j *SplitJob) Validate() error {
	if err := j.Input.validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if len(j.Outputs) == 0 {
		return errors.New("no outputs")
	}
	if err := j.Format.validate(); err != nil {
		return err
	}
	stdout := 0
	for i, out := range j.Outputs {
		if err := validation.ValidatePath(out.Path); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if out.Width <= 0 {
			return fmt.Errorf("output %d (%s): width must be positive", i, out.Path)
		}
		if out.Path == archive.StdioPath {
			stdout++
			continue
		}
		if j.Input.Path != archive.StdioPath && samePath(j.Input.Path, out.Path) {
			return fmt.Errorf("output %d (%s) is also the input", i, out.Path)
		}
		for _, prev := range j.Outputs[:i] {
			if samePath(prev.Path, out.Path) {
				return fmt.Errorf("output %s given twice", out.Path)
			}
		}
	}
	if stdout > 1 {
		return errors.New("standard output used by more than one output")
	}
	if w := j.Input.width(); w > 0 && w != j.width() {
		return fmt.Errorf("input width %d does not match output widths summing to %d", w, j.width())
	}
	return nil
}

func (j *SplitJob) width() int {
	n := 0
	for _, out := range j.Outputs {
		n += out.Width
	}
	return n
}

// Split cuts a merged stream into one file per output.
func Split(ctx context.Context, job SplitJob) (*Report, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid split job: %w", err)
	}

	report := newReport("split", []Input{job.Input})
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.LoggerFromContext(ctx)

	err := split(ctx, &job, report)
	report.Duration = time.Since(report.Started)
	if err != nil {
		logging.MergeFailed(logger, "split", err)
		return report, err
	}
	logging.MergeFinished(logger, "split", report.Units, report.Tokens, report.OutputBytes(), report.Duration)
	return report, nil
}

func split(ctx context.Context, job *SplitJob, report *Report) error {
	c, err := vertical.OpenCursor(0, job.Input.source(job.Stdin), job.classifier(), job.cursorOptions())
	if err != nil {
		return err
	}
	defer c.Close()

	sinks := make([]*sink, 0, len(job.Outputs))
	defer func() {
		for _, s := range sinks {
			s.close()
		}
	}()
	for _, out := range job.Outputs {
		s, err := openSink(out.Path, sinkOptions{
			delimiter:  job.Delimiter,
			bufferSize: job.BufferSize,
			flushEach:  job.FlushEach,
			stdout:     job.Stdout,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}

	widths := make([]int, len(job.Outputs))
	for i, out := range job.Outputs {
		widths[i] = out.Width
	}
	delim := job.Delimiter
	if delim == "" {
		delim = vertical.DefaultDelimiter
	}
	err = cut(ctx, c, sinks, widths, delim, report)
	for _, s := range sinks {
		if ferr := s.w.Flush(); err == nil {
			err = ferr
		}
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}

	in := &report.Inputs[0]
	in.Lines = int64(c.Line())
	in.Width = job.width()
	in.Digest = c.Digest()
	for _, s := range sinks {
		report.Outputs = append(report.Outputs, s.report())
	}
	return err
}

// cut copies records from c to sinks until the end of the stream. Token
// lines are cut at widths, one slice per sink.
func cut(ctx context.Context, c *vertical.Cursor, sinks []*sink, widths []int, delim string, report *Report) error {
	total := 0
	for _, w := range widths {
		total += w
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := c.Peek()
		if err == io.EOF {
			return c.CheckClosed()
		}
		if err != nil {
			return err
		}

		switch rec := rec.(type) {
		case *vertical.Token:
			if len(rec.Fields) != total {
				return &verrors.FieldCountError{
					Label:   c.Label(),
					Line:    c.Line(),
					Want:    total,
					Got:     len(rec.Fields),
					Content: strings.Join(rec.Fields, delim),
				}
			}
			fields := rec.Fields
			for i, s := range sinks {
				if err := s.w.Write(&vertical.Token{Fields: fields[:widths[i]]}); err != nil {
					return err
				}
				fields = fields[widths[i]:]
			}
			report.Tokens++
		default:
			for _, s := range sinks {
				if err := s.w.Write(rec); err != nil {
					return err
				}
			}
			report.Structures++
		}
		report.Units++
		c.Advance()
	}
}
