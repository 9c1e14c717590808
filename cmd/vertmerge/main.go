// Command vertmerge merges token-aligned vertical corpus files.
//
// Each input carries the same text with different token annotations. The
// merged output keeps the structure of the primary input and concatenates the
// token fields of all inputs, line by line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/core/merge"
	"github.com/FocuswithJustin/vertmerge/internal/config"
	"github.com/FocuswithJustin/vertmerge/internal/logging"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitDataError = 2
)

// CLI defines the command-line interface for vertmerge.
type CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`
	NoColor   bool   `name:"no-color" help:"Disable coloured diagnostics"`

	Merge   MergeCmd   `cmd:"" help:"Merge parallel vertical files"`
	Run     RunCmd     `cmd:"" help:"Run merge jobs from a TOML job file"`
	Check   CheckCmd   `cmd:"" help:"Validate vertical files"`
	Split   SplitCmd   `cmd:"" help:"Split a merged file back into its streams"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// env is bound to every command's Run method.
type env struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// stdio returns the streams behind the path "-".
func (e *env) stdio() merge.Stdio {
	return merge.Stdio{Stdin: e.stdin, Stdout: e.stdout}
}

// FormatFlags are the line format options shared by all commands.
type FormatFlags struct {
	Delimiter   string   `help:"Field delimiter, escapes like \\t allowed (default tab)"`
	SkipBlank   bool     `name:"skip-blank" help:"Ignore blank lines"`
	Struct      []string `name:"struct" sep:"none" help:"Structural tag name (repeatable); other tag-shaped lines are tokens"`
	MaxLineSize string   `name:"max-line-size" help:"Longest accepted line" default:"1MB"`
}

func (f *FormatFlags) format() (merge.Format, error) {
	delim, err := unescape(f.Delimiter)
	if err != nil {
		return merge.Format{}, fmt.Errorf("invalid delimiter: %w", err)
	}
	maxLine, err := parseSize(f.MaxLineSize)
	if err != nil {
		return merge.Format{}, fmt.Errorf("invalid max line size: %w", err)
	}
	return merge.Format{
		Delimiter:   delim,
		SkipBlank:   f.SkipBlank,
		StructNames: f.Struct,
		MaxLineSize: maxLine,
	}, nil
}

// OutputFlags are the options of commands that write vertical files.
type OutputFlags struct {
	BufferSize string `name:"buffer-size" help:"Output buffer size" default:"64KB"`
	FlushEach  bool   `name:"flush-each" help:"Flush output after every line"`
	Report     string `help:"Write a JSON run report to this file" type:"path"`
}

// MergeCmd merges inputs given on the command line.
type MergeCmd struct {
	Inputs   []string `arg:"" name:"input" help:"Input files; .gz, .xz and .zst are decompressed, - is stdin"`
	Out      string   `short:"o" help:"Output file; suffix selects compression, - is stdout" default:"-"`
	Name     string   `help:"Job name used in logs"`
	Primary  int      `help:"Index of the input whose structural tags are kept" default:"0"`
	Label    []string `sep:"none" help:"Label per input, in order"`
	Width    []int    `help:"Field count per input, in order; 0 infers it"`
	Encoding []string `sep:"none" help:"Character encoding per input, or one for all"`
	Progress int64    `help:"Log progress every N units (0 disables)"`

	FormatFlags `embed:""`
	OutputFlags `embed:""`
}

func (c *MergeCmd) Run(e *env) error {
	job, err := c.job()
	if err != nil {
		return err
	}
	job.Stdio = e.stdio()
	report, err := merge.Run(e.ctx, job)
	if report != nil && c.Report != "" {
		if serr := report.Save(c.Report); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (c *MergeCmd) job() (merge.Job, error) {
	n := len(c.Inputs)
	if len(c.Label) > 0 && len(c.Label) != n {
		return merge.Job{}, fmt.Errorf("%d labels given for %d inputs", len(c.Label), n)
	}
	if len(c.Width) > 0 && len(c.Width) != n {
		return merge.Job{}, fmt.Errorf("%d widths given for %d inputs", len(c.Width), n)
	}
	if len(c.Encoding) > 1 && len(c.Encoding) != n {
		return merge.Job{}, fmt.Errorf("%d encodings given for %d inputs", len(c.Encoding), n)
	}

	format, err := c.format()
	if err != nil {
		return merge.Job{}, err
	}
	buffer, err := parseSize(c.BufferSize)
	if err != nil {
		return merge.Job{}, fmt.Errorf("invalid buffer size: %w", err)
	}

	job := merge.Job{
		Name:          c.Name,
		Output:        c.Out,
		Primary:       c.Primary,
		Format:        format,
		BufferSize:    buffer,
		FlushEach:     c.FlushEach,
		ProgressEvery: c.Progress,
	}
	for i, path := range c.Inputs {
		in := merge.Input{Path: path}
		if len(c.Label) > 0 {
			in.Label = c.Label[i]
		}
		if len(c.Width) > 0 {
			in.Width = c.Width[i]
		}
		switch len(c.Encoding) {
		case 0:
		case 1:
			in.Encoding = c.Encoding[0]
		default:
			in.Encoding = c.Encoding[i]
		}
		job.Inputs = append(job.Inputs, in)
	}
	return job, nil
}

// RunCmd runs the jobs of a job file.
type RunCmd struct {
	JobFile     string `arg:"" name:"jobfile" help:"TOML job file" type:"existingfile"`
	Concurrency int    `short:"j" help:"Jobs run at once; overrides the job file, 0 uses one per CPU"`
	Report      string `help:"Write JSON run reports to this file" type:"path"`
}

func (c *RunCmd) Run(e *env) error {
	f, err := config.Load(c.JobFile)
	if err != nil {
		return err
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = f.Concurrency
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	for i := range f.Jobs {
		f.Jobs[i].Stdio = e.stdio()
	}
	reports, err := merge.RunAll(e.ctx, f.Jobs, concurrency)
	if c.Report != "" && reports != nil {
		if serr := merge.SaveAll(c.Report, reports); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// CheckCmd validates files one by one.
type CheckCmd struct {
	Inputs   []string `arg:"" name:"input" help:"Files to check"`
	Width    []int    `help:"Expected field count per input, in order; 0 infers it"`
	Encoding string   `help:"Character encoding of the inputs"`
	Progress int64    `help:"Log progress every N lines (0 disables)"`

	FormatFlags `embed:""`
}

func (c *CheckCmd) Run(e *env) error {
	if len(c.Width) > 0 && len(c.Width) != len(c.Inputs) {
		return fmt.Errorf("%d widths given for %d inputs", len(c.Width), len(c.Inputs))
	}
	format, err := c.format()
	if err != nil {
		return err
	}
	opts := merge.CheckOptions{Format: format, ProgressEvery: c.Progress, Stdin: e.stdin}

	var errs []error
	for i, path := range c.Inputs {
		in := merge.Input{Path: path, Encoding: c.Encoding}
		if len(c.Width) > 0 {
			in.Width = c.Width[i]
		}
		report, err := merge.Check(e.ctx, in, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r := report.Inputs[0]
		fmt.Fprintf(e.stdout, "%s: ok, %s lines, %s tokens, %d fields\n",
			r.Label, humanize.Comma(r.Lines), humanize.Comma(report.Tokens), r.Width)
	}
	return errors.Join(errs...)
}

// SplitCmd cuts a merged file into one file per stream.
type SplitCmd struct {
	Input    string   `arg:"" help:"Merged file, - is stdin"`
	Out      []string `short:"o" required:"" sep:"none" help:"Output file per stream, in order"`
	Width    []int    `required:"" help:"Field count per output, in order"`
	Encoding string   `help:"Character encoding of the input"`

	FormatFlags `embed:""`
	OutputFlags `embed:""`
}

func (c *SplitCmd) Run(e *env) error {
	if len(c.Out) != len(c.Width) {
		return fmt.Errorf("%d outputs given with %d widths", len(c.Out), len(c.Width))
	}
	format, err := c.format()
	if err != nil {
		return err
	}
	buffer, err := parseSize(c.BufferSize)
	if err != nil {
		return fmt.Errorf("invalid buffer size: %w", err)
	}

	job := merge.SplitJob{
		Input:      merge.Input{Path: c.Input, Encoding: c.Encoding},
		Format:     format,
		BufferSize: buffer,
		FlushEach:  c.FlushEach,
		Stdio:      e.stdio(),
	}
	for i, path := range c.Out {
		job.Outputs = append(job.Outputs, merge.SplitOutput{Path: path, Width: c.Width[i]})
	}

	report, err := merge.Split(e.ctx, job)
	if report != nil && c.Report != "" {
		if serr := report.Save(c.Report); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.stdout, "vertmerge version %s\n", version)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, runs the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("vertmerge"),
		kong.Description("Merge token-aligned vertical corpus files"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		fmt.Fprintf(stderr, "vertmerge: %v\n", err)
		return exitFailure
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return exitFailure
	}

	level, _ := logging.ParseLevel(cli.LogLevel)
	format, _ := logging.ParseFormat(cli.LogFormat)
	logging.InitLoggerTo(stderr, level, format)
	color.NoColor = cli.NoColor || !isTerminal(stderr)

	err = kctx.Run(&env{ctx: ctx, stdin: stdin, stdout: stdout, stderr: stderr})
	if err == nil {
		return exitOK
	}
	printError(stderr, err)
	if verrors.IsDataError(err) {
		return exitDataError
	}
	return exitFailure
}

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	dataLabel  = color.New(color.FgYellow, color.Bold)
)

// printError writes one diagnostic line per failure in err.
func printError(w io.Writer, err error) {
	for _, e := range splitErrors(err) {
		label := errorLabel
		kind := "error"
		if verrors.IsDataError(e) {
			label = dataLabel
			kind = "invalid input"
		}
		fmt.Fprint(w, "vertmerge: ")
		label.Fprint(w, kind+":")
		fmt.Fprintf(w, " %v\n", e)
	}
}

// splitErrors undoes errors.Join so each failure gets its own line.
func splitErrors(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if _, typed := err.(*verrors.SourceError); !typed {
			if _, typed := err.(*verrors.SinkError); !typed {
				return joined.Unwrap()
			}
		}
	}
	return []error{err}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func parseSize(s string) (int, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	if size > config.MaxSize {
		return 0, fmt.Errorf("%s exceeds %s", size.HR(), config.MaxSize.HR())
	}
	return int(size.Bytes()), nil
}

// unescape turns a delimiter typed as \t or \u0009 into the character.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	return strconv.Unquote(`"` + s + `"`)
}
