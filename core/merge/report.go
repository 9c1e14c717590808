package merge

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/vertmerge/core/align"
	"github.com/FocuswithJustin/vertmerge/core/vertical"
)

// Report describes a finished or failed run. On failure it holds whatever
// was known when the run stopped.
type Report struct {
	RunID      string         `json:"run_id"`
	Job        string         `json:"job,omitempty"`
	Inputs     []StreamReport `json:"inputs"`
	Outputs    []StreamReport `json:"outputs,omitempty"`
	Fields     []string       `json:"fields,omitempty"`
	Units      int64          `json:"units"`
	Tokens     int64          `json:"tokens"`
	Structures int64          `json:"structures"`
	Started    time.Time      `json:"started"`
	Duration   time.Duration  `json:"duration_ns"`
}

// StreamReport describes one input or output.
type StreamReport struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Lines  int64  `json:"lines"`
	Width  int    `json:"width,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Digest string `json:"digest,omitempty"`
}

func newReport(job string, inputs []Input) *Report {
	r := &Report{
		RunID:   uuid.New().String(),
		Job:     job,
		Inputs:  make([]StreamReport, len(inputs)),
		Started: time.Now(),
	}
	for i, in := range inputs {
		r.Inputs[i] = StreamReport{Label: in.label(), Path: in.Path, Width: in.width()}
	}
	return r
}

// addStats copies engine counters and per-input line counts. cursors are
// the opened inputs, in order.
func (r *Report) addStats(stats align.Stats, cursors []*vertical.Cursor) {
	r.Units = stats.Units
	r.Tokens = stats.Tokens
	r.Structures = stats.Structures
	for i, c := range cursors {
		in := &r.Inputs[i]
		in.Lines = int64(stats.Lines[i])
		in.Width = stats.Widths[i]
		in.Digest = c.Digest()
	}
}

// OutputBytes returns the number of uncompressed bytes written to all outputs.
func (r *Report) OutputBytes() int64 {
	var n int64
	for _, out := range r.Outputs {
		n += out.Bytes
	}
	return n
}

// Save writes the report as indented JSON to path.
func (r *Report) Save(path string) error {
	return saveJSON(path, r)
}

// SaveAll writes reports as an indented JSON array to path.
func SaveAll(path string, reports []*Report) error {
	return saveJSON(path, reports)
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
