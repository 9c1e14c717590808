// Package merge runs merge, check and split jobs over vertical files.
//
// A Job names its inputs and output by path; Run opens them, drives an
// align.Engine and reports what was read and written. Compression is picked
// from the file suffix and legacy encodings are decoded on the fly.
package merge

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/FocuswithJustin/vertmerge/core/vertical"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/validation"
)

// Format describes how lines are read and split into fields.
type Format struct {
	// Delimiter between token fields. Defaults to a tab.
	Delimiter string
	// SkipBlank ignores empty lines instead of rejecting them.
	SkipBlank bool
	// StructNames restricts which tag names are structural. Empty means all.
	StructNames []string
	// MaxLineSize bounds a single line in bytes.
	MaxLineSize int
}

func (f Format) validate() error {
	if f.Delimiter != "" {
		if err := validation.ValidateDelimiter(f.Delimiter); err != nil {
			return err
		}
	}
	if f.MaxLineSize < 0 {
		return fmt.Errorf("negative max line size %d", f.MaxLineSize)
	}
	for _, name := range f.StructNames {
		if name == "" {
			return errors.New("empty structure name")
		}
	}
	return nil
}

func (f Format) classifier() *vertical.Classifier {
	return vertical.NewClassifier(vertical.ClassifierOptions{
		Delimiter:   f.Delimiter,
		SkipBlank:   f.SkipBlank,
		StructNames: f.StructNames,
	})
}

func (f Format) cursorOptions() vertical.CursorOptions {
	return vertical.CursorOptions{MaxLineSize: f.MaxLineSize, Digest: true}
}

// Stdio supplies the streams behind the path "-". Nil fields mean the
// process's own standard input and output.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// Input is one stream of a merge.
type Input struct {
	// Path of the file, "-" for standard input.
	Path string
	// Label used in diagnostics and reports. Defaults to Path.
	Label string
	// Width is the number of token fields. Zero infers it from Fields or,
	// failing that, from the first token line.
	Width int
	// Fields names the positional attributes of the stream, e.g. word, tag.
	Fields []string
	// Encoding of the file. Empty means UTF-8.
	Encoding string
}

func (in Input) validate() error {
	if err := validation.ValidatePath(in.Path); err != nil {
		return err
	}
	if in.Label != "" {
		if err := validation.ValidateLabel(in.Label); err != nil {
			return err
		}
	}
	if in.Width < 0 {
		return fmt.Errorf("negative width %d", in.Width)
	}
	if len(in.Fields) > 0 && in.Width > 0 && len(in.Fields) != in.Width {
		return fmt.Errorf("width %d does not match %d field names", in.Width, len(in.Fields))
	}
	for _, name := range in.Fields {
		if name == "" {
			return errors.New("empty field name")
		}
	}
	return archive.ValidCharset(in.Encoding)
}

func (in Input) label() string {
	if in.Label != "" {
		return in.Label
	}
	return streamLabel(in.Path, "stdin")
}

func (in Input) width() int {
	if in.Width > 0 {
		return in.Width
	}
	return len(in.Fields)
}

func (in Input) source(stdin io.Reader) vertical.Source {
	return vertical.Source{Path: in.Path, Label: in.label(), Encoding: in.Encoding, Stdin: stdin}
}

// Job describes one merge.
type Job struct {
	// Name identifies the job in logs and reports.
	Name   string
	Inputs []Input
	// Output path, "-" or empty for standard output.
	Output string
	// Primary is the index of the input whose structural tags are kept.
	Primary int
	Format
	// BufferSize of the output buffer in bytes.
	BufferSize int
	// FlushEach flushes the output after every record.
	FlushEach bool
	// ProgressEvery logs progress every that many units.
	ProgressEvery int64
	Stdio
}

// Validate checks the job without touching the filesystem.
func (j *Job) Validate() error {
	if len(j.Inputs) == 0 {
		return errors.New("no inputs")
	}
	if j.Primary < 0 || j.Primary >= len(j.Inputs) {
		return fmt.Errorf("primary input %d out of range [0, %d)", j.Primary, len(j.Inputs))
	}
	if err := j.Format.validate(); err != nil {
		return err
	}
	if j.BufferSize < 0 {
		return fmt.Errorf("negative buffer size %d", j.BufferSize)
	}
	if j.ProgressEvery < 0 {
		return fmt.Errorf("negative progress interval %d", j.ProgressEvery)
	}

	out := j.output()
	if err := validation.ValidatePath(out); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	stdin := 0
	for i, in := range j.Inputs {
		if err := in.validate(); err != nil {
			return fmt.Errorf("input %d (%s): %w", i, in.Path, err)
		}
		if in.Path == archive.StdioPath {
			stdin++
			continue
		}
		if out != archive.StdioPath && samePath(in.Path, out) {
			return fmt.Errorf("input %d (%s) is also the output", i, in.Path)
		}
	}
	if stdin > 1 {
		return errors.New("standard input used by more than one input")
	}
	return nil
}

func (j *Job) output() string {
	if j.Output == "" {
		return archive.StdioPath
	}
	return j.Output
}

func (j *Job) widths() []int {
	widths := make([]int, len(j.Inputs))
	for i, in := range j.Inputs {
		widths[i] = in.width()
	}
	return widths
}

// fields returns the merged positional attribute names, or nil unless every
// input names its fields.
func (j *Job) fields() []string {
	var names []string
	for _, in := range j.Inputs {
		if len(in.Fields) == 0 {
			return nil
		}
		names = append(names, in.Fields...)
	}
	return names
}

func streamLabel(path, stdio string) string {
	if path == archive.StdioPath {
		return stdio
	}
	return path
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
