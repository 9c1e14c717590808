package merge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/FocuswithJustin/vertmerge/core/align"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/logging"
)

// CheckOptions configures Check.
type CheckOptions struct {
	Format
	ProgressEvery int64
	// Stdin is read for the path "-". Nil means os.Stdin.
	Stdin io.Reader
}

// Check validates a single file: every line classifies, structures nest and
// every token line has the same number of fields. It runs the same engine as
// a merge, with one stream and no output.
func Check(ctx context.Context, in Input, opts CheckOptions) (*Report, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("invalid input %s: %w", in.Path, err)
	}
	if err := opts.Format.validate(); err != nil {
		return nil, err
	}

	report := newReport("check", []Input{in})
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.LoggerFromContext(ctx)

	c, err := vertical.OpenCursor(0, in.source(opts.Stdin), opts.classifier(), opts.cursorOptions())
	if err != nil {
		return report, err
	}
	defer c.Close()

	engine, err := align.New([]*vertical.Cursor{c}, align.Options{
		Widths:        []int{in.width()},
		Logger:        logger,
		ProgressEvery: opts.ProgressEvery,
	})
	if err != nil {
		return report, err
	}
	stats, err := engine.Run(ctx, vertical.NewWriter(io.Discard, vertical.WriterOptions{Label: "discard"}))
	report.addStats(stats, []*vertical.Cursor{c})
	report.Duration = time.Since(report.Started)
	if err != nil {
		logging.CheckFailed(logger, in.label(), err)
		return report, err
	}
	logging.CheckPassed(logger, in.label(), stats.Lines[0], stats.Tokens)
	return report, nil
}
