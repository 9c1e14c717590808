package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/internal/archive"
	"github.com/FocuswithJustin/vertmerge/internal/digest"
)

const (
	english = "<doc id=\"1\">\n<s>\ncat\tNN\nsat\tVBD\n</s>\n</doc>\n"
	czech   = "<doc id=\"1\">\n<s>\nkočka\tFS\nseděla\tVB\n</s>\n</doc>\n"
	merged  = "<doc id=\"1\">\n<s>\ncat\tNN\tkočka\tFS\nsat\tVBD\tseděla\tVB\n</s>\n</doc>\n"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := archive.NewWriter(path, nil)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	r, err := archive.NewReader(path, nil)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Name: "en-cs",
		Inputs: []Input{
			{Path: writeFile(t, dir, "en.vert", english), Label: "en"},
			{Path: writeFile(t, dir, "cs.vert", czech), Label: "cs"},
		},
		Output: filepath.Join(dir, "out", "en-cs.vert"),
	}

	report, err := Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, merged, readFile(t, job.Output))

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err, "run ID should be a UUID")
	assert.Equal(t, "en-cs", report.Job)
	assert.Equal(t, int64(6), report.Units)
	assert.Equal(t, int64(2), report.Tokens)
	assert.Equal(t, int64(4), report.Structures)

	require.Len(t, report.Inputs, 2)
	assert.Equal(t, StreamReport{
		Label:  "en",
		Path:   job.Inputs[0].Path,
		Lines:  6,
		Width:  2,
		Digest: digest.Sum256([]byte(english)),
	}, report.Inputs[0])
	assert.Equal(t, digest.Sum256([]byte(czech)), report.Inputs[1].Digest)

	require.Len(t, report.Outputs, 1)
	assert.Equal(t, int64(6), report.Outputs[0].Lines)
	assert.Equal(t, int64(len(merged)), report.Outputs[0].Bytes)
	assert.Equal(t, digest.Sum256([]byte(merged)), report.Outputs[0].Digest)
	assert.Equal(t, int64(len(merged)), report.OutputBytes())
}

func TestRunCompressed(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "en.vert.gz", english)},
			{Path: writeFile(t, dir, "cs.vert.zst", czech)},
		},
		Output: filepath.Join(dir, "merged.vert.xz"),
	}

	report, err := Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, merged, readFile(t, job.Output))
	assert.Equal(t, digest.Sum256([]byte(english)), report.Inputs[0].Digest,
		"input digests are taken over the decompressed text")
	assert.Equal(t, job.Inputs[0].Path, report.Inputs[0].Label)
}

func TestRunEncoding(t *testing.T) {
	dir := t.TempDir()
	latin2 := "<doc id=\"1\">\n<s>\nko\xe8ka\tFS\nsed\xecla\tVB\n</s>\n</doc>\n"
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "en.vert", english)},
			{Path: writeFile(t, dir, "cs.vert", latin2), Encoding: "iso-8859-2"},
		},
		Output: filepath.Join(dir, "merged.vert"),
	}

	_, err := Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, merged, readFile(t, job.Output))
}

func TestRunFieldNames(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "en.vert", english), Fields: []string{"word", "tag"}},
			{Path: writeFile(t, dir, "cs.vert", czech), Fields: []string{"cs_word", "cs_tag"}},
		},
		Output: filepath.Join(dir, "merged.vert"),
	}
	report, err := Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"word", "tag", "cs_word", "cs_tag"}, report.Fields)

	job.Inputs[1].Fields = []string{"cs_word"}
	_, err = Run(context.Background(), job)
	var fe *verrors.FieldCountError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Want)
	assert.Equal(t, 2, fe.Got)
	assert.Equal(t, 3, fe.Line)
}

func TestRunAlignmentMismatch(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "a.vert", "<s>\nw\n</s>\n<s>\nv\n</s>\n"), Label: "a"},
			{Path: writeFile(t, dir, "b.vert", "<s>\nW\n</s>\n<p>\nV\n</p>\n"), Label: "b"},
		},
		Output: filepath.Join(dir, "merged.vert"),
	}

	report, err := Run(context.Background(), job)
	var ae *verrors.AlignmentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int64(4), ae.Unit)
	assert.True(t, verrors.IsDataError(err))
	assert.Contains(t, err.Error(), "stream 1 (b) line 4: <p>")

	require.NotNil(t, report)
	assert.Equal(t, int64(3), report.Units)
	assert.Equal(t, "<s>\nw\tW\n</s>\n", readFile(t, job.Output), "output before the failing unit is kept")
}

func TestRunUnequalLengths(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "a.vert", "w\nv\n")},
			{Path: writeFile(t, dir, "b.vert", "W\n")},
		},
		Output: filepath.Join(dir, "merged.vert"),
	}
	_, err := Run(context.Background(), job)
	assert.ErrorIs(t, err, verrors.ErrUnequalLengths)
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.vert")
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "a.vert", "w\n")},
			{Path: filepath.Join(dir, "missing.vert"), Label: "missing"},
		},
		Output: out,
	}

	_, err := Run(context.Background(), job)
	var se *verrors.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "missing", se.Label)
	assert.Equal(t, "open", se.Op)
	assert.False(t, verrors.IsDataError(err))
	assert.NoFileExists(t, out, "output must not be created when an input cannot be opened")
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	text := strings.Repeat("w\tX\n", 1000)
	job := Job{
		Inputs: []Input{
			{Path: writeFile(t, dir, "a.vert", text)},
			{Path: writeFile(t, dir, "b.vert", text)},
		},
		Output: filepath.Join(dir, "merged.vert"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidJob(t *testing.T) {
	_, err := Run(context.Background(), Job{Name: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
	assert.Contains(t, err.Error(), "no inputs")
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	en := writeFile(t, dir, "en.vert", english)
	cs := writeFile(t, dir, "cs.vert", czech)
	bad := writeFile(t, dir, "bad.vert", "<doc>\n<s>\nw\tX\n</doc>\n")

	jobs := []Job{
		{Name: "first", Inputs: []Input{{Path: en}, {Path: cs}}, Output: filepath.Join(dir, "1.vert")},
		{Name: "broken", Inputs: []Input{{Path: en}, {Path: bad}}, Output: filepath.Join(dir, "2.vert")},
		{Name: "third", Inputs: []Input{{Path: cs}, {Path: en}}, Output: filepath.Join(dir, "3.vert")},
	}

	reports, err := RunAll(context.Background(), jobs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job broken")
	assert.NotContains(t, err.Error(), "job first")
	assert.ErrorIs(t, err, verrors.ErrMalformedLine)
	assert.True(t, verrors.IsDataError(err))

	require.Len(t, reports, 3)
	for i, r := range reports {
		require.NotNil(t, r, "report %d", i)
		assert.Equal(t, jobs[i].Name, r.Job)
	}
	assert.Equal(t, merged, readFile(t, jobs[0].Output))
	assert.FileExists(t, jobs[2].Output)
	assert.NotEqual(t, reports[0].RunID, reports[2].RunID)
}

func TestRunAllDuplicateOutputs(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.vert", "w\n")
	out := filepath.Join(dir, "out.vert")

	tests := []struct {
		name    string
		jobs    []Job
		wantErr string
	}{
		{
			name: "same file",
			jobs: []Job{
				{Name: "one", Inputs: []Input{{Path: in}}, Output: out},
				{Name: "two", Inputs: []Input{{Path: in}}, Output: dir + "/./out.vert"},
			},
			wantErr: "jobs one and two both write " + dir + "/./out.vert",
		},
		{
			name: "two stdout jobs",
			jobs: []Job{
				{Name: "one", Inputs: []Input{{Path: in}}},
				{Name: "two", Inputs: []Input{{Path: in}}, Output: "-"},
			},
			wantErr: "jobs one and two both write standard output",
		},
		{
			name: "two stdin jobs",
			jobs: []Job{
				{Name: "one", Inputs: []Input{{Path: "-"}}, Output: out},
				{Name: "two", Inputs: []Input{{Path: in}, {Path: "-"}}, Output: filepath.Join(dir, "two.vert")},
			},
			wantErr: "jobs one and two both read standard input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			for i := range tt.jobs {
				tt.jobs[i].Stdin = strings.NewReader("w\n")
				tt.jobs[i].Stdout = &stdout
			}
			_, err := RunAll(context.Background(), tt.jobs, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoFileExists(t, out)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRunAllOneStdioJob(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.vert", "<s>\nw\n</s>\n")
	var stdout bytes.Buffer
	jobs := []Job{
		{Name: "piped", Inputs: []Input{{Path: "-"}, {Path: in}}, Stdio: Stdio{Stdin: strings.NewReader("<s>\nW\n</s>\n"), Stdout: &stdout}},
		{Name: "file", Inputs: []Input{{Path: in}}, Output: filepath.Join(dir, "out.vert")},
	}

	_, err := RunAll(context.Background(), jobs, 2)
	require.NoError(t, err)
	assert.Equal(t, "<s>\nW\tw\n</s>\n", stdout.String())
	assert.Equal(t, "<s>\nw\n</s>\n", readFile(t, filepath.Join(dir, "out.vert")))
}

func TestRunStdio(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	job := Job{
		Inputs: []Input{{Path: writeFile(t, dir, "en.vert", english)}, {Path: "-"}},
		Stdio:  Stdio{Stdin: strings.NewReader(czech), Stdout: &stdout},
	}

	report, err := Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, merged, stdout.String())
	assert.Equal(t, "stdin", report.Inputs[1].Label)
	require.Len(t, report.Outputs, 1)
	assert.Equal(t, "stdout", report.Outputs[0].Label)
	assert.Equal(t, int64(len(merged)), report.Outputs[0].Bytes)
}

func TestRunTruncatedInput(t *testing.T) {
	dir := t.TempDir()
	short := writeFile(t, dir, "short.vert", "<s>\nw\tX\n")
	full := writeFile(t, dir, "full.vert", "<s>\nw\tY\n</s>\n")

	_, err := Run(context.Background(), Job{Inputs: []Input{{Path: short}, {Path: full}}, Output: filepath.Join(dir, "out.vert")})
	require.Error(t, err)
	assert.ErrorIs(t, err, verrors.ErrUnequalLengths)
	assert.NotErrorIs(t, err, verrors.ErrMalformedLine)
}

func TestReportSave(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Inputs: []Input{{Path: writeFile(t, dir, "a.vert", "<s>\nw\n</s>\n"), Label: "a"}},
		Output: filepath.Join(dir, "out.vert"),
	}
	report, err := Run(context.Background(), job)
	require.NoError(t, err)

	path := filepath.Join(dir, "report.json")
	require.NoError(t, report.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.RunID, decoded["run_id"])
	assert.EqualValues(t, 3, decoded["units"])
	inputs, ok := decoded["inputs"].([]any)
	require.True(t, ok)
	assert.Equal(t, "a", inputs[0].(map[string]any)["label"])

	assert.Error(t, report.Save(filepath.Join(dir, "missing", "report.json")))
}
