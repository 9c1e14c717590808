package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
	"github.com/FocuswithJustin/vertmerge/internal/digest"
)

func TestCheck(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		input   Input
		opts    CheckOptions
		wantErr error
	}{
		{name: "valid", content: english},
		{name: "single field tokens", content: "<s>\na\nb\n</s>\n"},
		{name: "empty file", content: ""},
		{name: "varying width", content: "<s>\na\tB\nc\n</s>\n", wantErr: verrors.ErrFieldCount},
		{name: "declared width", content: english, input: Input{Width: 3}, wantErr: verrors.ErrFieldCount},
		{name: "unclosed structure", content: "<doc>\n<s>\na\n</s>\n", wantErr: verrors.ErrMalformedLine},
		{name: "crossed tags", content: "<p>\n<s>\n</p>\n</s>\n", wantErr: verrors.ErrMalformedLine},
		{name: "blank line", content: "<s>\na\n\nb\n</s>\n", wantErr: verrors.ErrMalformedLine},
		{name: "blank line skipped", content: "<s>\na\n\nb\n</s>\n", opts: CheckOptions{Format: Format{SkipBlank: true}}},
		{name: "undeclared tag as token", content: "<s>\n<unk>\n</s>\n", opts: CheckOptions{Format: Format{StructNames: []string{"s"}}}},
		{name: "line too long", content: "<s>\nabcdefghij\n</s>\n", opts: CheckOptions{Format: Format{MaxLineSize: 5}}, wantErr: verrors.ErrMalformedLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.Path = writeFile(t, dir, tt.name+".vert", tt.content)

			report, err := Check(context.Background(), in, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, report.Inputs, 1)
			assert.Equal(t, digest.Sum256([]byte(tt.content)), report.Inputs[0].Digest)
			assert.Empty(t, report.Outputs)
		})
	}
}

func TestCheckReport(t *testing.T) {
	path := writeFile(t, t.TempDir(), "en.vert.gz", english)
	report, err := Check(context.Background(), Input{Path: path, Label: "en"}, CheckOptions{})
	require.NoError(t, err)

	assert.Equal(t, "check", report.Job)
	assert.Equal(t, int64(6), report.Units)
	assert.Equal(t, int64(2), report.Tokens)
	assert.Equal(t, "en", report.Inputs[0].Label)
	assert.Equal(t, int64(6), report.Inputs[0].Lines)
	assert.Equal(t, 2, report.Inputs[0].Width)
}

func TestCheckInvalid(t *testing.T) {
	_, err := Check(context.Background(), Input{Path: ""}, CheckOptions{})
	assert.Error(t, err)

	_, err = Check(context.Background(), Input{Path: "a.vert", Encoding: "klingon"}, CheckOptions{})
	assert.Error(t, err)

	_, err = Check(context.Background(), Input{Path: "a.vert"}, CheckOptions{Format: Format{Delimiter: "\n"}})
	assert.Error(t, err)
}
