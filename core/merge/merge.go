package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/vertmerge/core/align"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/logging"
)

// Run merges the inputs of job into its output.
//
// Inputs are opened before the output, so a missing input never truncates an
// existing output. Every input is closed before Run returns. On failure the
// returned report is still filled in as far as the merge got, and output
// written before the failing unit is left in place.
func Run(ctx context.Context, job Job) (*Report, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job %s: %w", job.displayName(), err)
	}

	report := newReport(job.Name, job.Inputs)
	report.Fields = job.fields()
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.LoggerFromContext(ctx)
	logging.MergeStarted(logger, job.displayName(), len(job.Inputs), job.output())

	err := run(ctx, &job, report, logger)
	report.Duration = time.Since(report.Started)
	if err != nil {
		logging.MergeFailed(logger, job.displayName(), err)
		return report, err
	}
	logging.MergeFinished(logger, job.displayName(), report.Units, report.Tokens,
		report.OutputBytes(), report.Duration)
	return report, nil
}

func run(ctx context.Context, job *Job, report *Report, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cls := job.classifier()
	cursors := make([]*vertical.Cursor, 0, len(job.Inputs))
	defer func() {
		for _, c := range cursors {
			c.Close()
		}
	}()
	for i, in := range job.Inputs {
		c, err := vertical.OpenCursor(i, in.source(job.Stdin), cls, job.cursorOptions())
		if err != nil {
			return err
		}
		cursors = append(cursors, c)
	}

	engine, err := align.New(cursors, align.Options{
		Primary:       job.Primary,
		Widths:        job.widths(),
		Logger:        logger,
		ProgressEvery: job.ProgressEvery,
	})
	if err != nil {
		return err
	}

	out, err := openSink(job.output(), sinkOptions{
		delimiter:  job.Delimiter,
		bufferSize: job.BufferSize,
		flushEach:  job.FlushEach,
		stdout:     job.Stdout,
	})
	if err != nil {
		return err
	}
	defer out.close()

	stats, runErr := engine.Run(ctx, out.w)
	closeErr := out.close()
	report.addStats(stats, cursors)
	report.Outputs = []StreamReport{out.report()}
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// RunAll runs independent jobs in parallel, at most concurrency at a time
// (unlimited if concurrency <= 0). A failing job does not stop the others.
// Reports are returned in job order; the error joins every job's failure.
func RunAll(ctx context.Context, jobs []Job, concurrency int) ([]*Report, error) {
	if err := checkStreams(jobs); err != nil {
		return nil, err
	}

	reports := make([]*Report, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			r, err := Run(ctx, job)
			reports[i] = r
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.displayName(), err)
			}
			return nil
		})
	}
	g.Wait()

	return reports, errors.Join(errs...)
}

// checkStreams rejects job sets where two jobs write the same file, or more
// than one job writes standard output or reads standard input.
func checkStreams(jobs []Job) error {
	seen := make(map[string]string, len(jobs))
	var stdout, stdin string
	for _, job := range jobs {
		name := job.displayName()
		for _, in := range job.Inputs {
			if in.Path != archive.StdioPath {
				continue
			}
			if stdin != "" && stdin != name {
				return fmt.Errorf("jobs %s and %s both read standard input", stdin, name)
			}
			stdin = name
		}

		out := job.output()
		if out == archive.StdioPath {
			if stdout != "" {
				return fmt.Errorf("jobs %s and %s both write standard output", stdout, name)
			}
			stdout = name
			continue
		}
		for prev, other := range seen {
			if samePath(prev, out) {
				return fmt.Errorf("jobs %s and %s both write %s", other, name, out)
			}
		}
		seen[out] = name
	}
	return nil
}

func (j *Job) displayName() string {
	if j.Name != "" {
		return j.Name
	}
	return streamLabel(j.output(), "stdout")
}
