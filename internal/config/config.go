// Package config loads merge jobs from TOML job files.
//
// A job file describes either a single job with top-level keys:
//
//	name = "en-cs"
//	output = "merged/en-cs.vert.xz"
//	max_line_size = "4MB"
//
//	[[input]]
//	path = "en.vert"
//	fields = ["word", "tag"]
//
//	[[input]]
//	path = "cs.vert.gz"
//	encoding = "iso-8859-2"
//
// or several jobs as [[job]] tables, each with its own [[job.input]] list.
// Relative paths are resolved against the directory of the job file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/c2h5oh/datasize"

	"github.com/FocuswithJustin/vertmerge/core/merge"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
)

// MaxSize bounds size settings.
const MaxSize = 1 * datasize.GB

// File is a loaded job file.
type File struct {
	// Path of the job file, empty when parsed from memory.
	Path string
	// Concurrency is the number of jobs run at once, 0 for no limit.
	Concurrency int
	Jobs        []merge.Job
}

type fileSpec struct {
	Concurrency int `toml:"concurrency"`
	jobSpec
	Jobs []jobSpec `toml:"job"`
}

type jobSpec struct {
	Name          string            `toml:"name"`
	Output        string            `toml:"output"`
	Primary       int               `toml:"primary"`
	Delimiter     string            `toml:"delimiter"`
	SkipBlank     bool              `toml:"skip_blank"`
	StructNames   []string          `toml:"struct_names"`
	MaxLineSize   datasize.ByteSize `toml:"max_line_size"`
	BufferSize    datasize.ByteSize `toml:"buffer_size"`
	FlushEach     bool              `toml:"flush_each"`
	ProgressEvery int64             `toml:"progress_every"`
	Inputs        []inputSpec       `toml:"input"`
}

type inputSpec struct {
	Path     string   `toml:"path"`
	Label    string   `toml:"label"`
	Width    int      `toml:"width"`
	Fields   []string `toml:"fields"`
	Encoding string   `toml:"encoding"`
}

// Load reads and validates the job file at path.
func Load(path string) (*File, error) {
	var spec fileSpec
	meta, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	f, err := build(spec, meta, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse reads a job file from data. Relative paths are resolved against
// baseDir.
func Parse(data, baseDir string) (*File, error) {
	var spec fileSpec
	meta, err := toml.Decode(data, &spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return build(spec, meta, baseDir)
}

func build(spec fileSpec, meta toml.MetaData, baseDir string) (*File, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if spec.Concurrency < 0 {
		return nil, fmt.Errorf("negative concurrency %d", spec.Concurrency)
	}

	specs := spec.Jobs
	if len(spec.jobSpec.Inputs) > 0 {
		if len(specs) > 0 {
			return nil, errors.New("top-level inputs cannot be combined with [[job]] tables")
		}
		specs = []jobSpec{spec.jobSpec}
	}
	if len(specs) == 0 {
		return nil, errors.New("no jobs defined")
	}

	f := &File{Concurrency: spec.Concurrency}
	for i, js := range specs {
		job, err := js.job(baseDir)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i+1, err)
		}
		if job.Name == "" && len(specs) > 1 {
			job.Name = fmt.Sprintf("job%d", i+1)
		}
		if err := job.Validate(); err != nil {
			if job.Name == "" {
				return nil, fmt.Errorf("job %d: %w", i+1, err)
			}
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		f.Jobs = append(f.Jobs, job)
	}
	return f, nil
}

func (js jobSpec) job(baseDir string) (merge.Job, error) {
	maxLine, err := size("max_line_size", js.MaxLineSize)
	if err != nil {
		return merge.Job{}, err
	}
	buffer, err := size("buffer_size", js.BufferSize)
	if err != nil {
		return merge.Job{}, err
	}

	job := merge.Job{
		Name:    js.Name,
		Output:  resolve(baseDir, js.Output),
		Primary: js.Primary,
		Format: merge.Format{
			Delimiter:   js.Delimiter,
			SkipBlank:   js.SkipBlank,
			StructNames: js.StructNames,
			MaxLineSize: maxLine,
		},
		BufferSize:    buffer,
		FlushEach:     js.FlushEach,
		ProgressEvery: js.ProgressEvery,
	}
	for _, in := range js.Inputs {
		job.Inputs = append(job.Inputs, merge.Input{
			Path:     resolve(baseDir, in.Path),
			Label:    in.Label,
			Width:    in.Width,
			Fields:   in.Fields,
			Encoding: in.Encoding,
		})
	}
	return job, nil
}

func size(key string, v datasize.ByteSize) (int, error) {
	if v > MaxSize {
		return 0, fmt.Errorf("%s %s exceeds %s", key, v.HR(), MaxSize.HR())
	}
	return int(v.Bytes()), nil
}

// resolve makes a job file path relative to baseDir. Empty paths, "-" and
// absolute paths are kept as they are.
func resolve(baseDir, path string) string {
	if path == "" || path == archive.StdioPath || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
