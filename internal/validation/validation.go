// Package validation checks user-supplied paths, labels and delimiters before
// any file is opened.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits on user-supplied values.
const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxLabelLength is the maximum allowed stream label length.
	MaxLabelLength = 255
)

// Common validation errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidLabel     = errors.New("invalid label")
	ErrInvalidDelimiter = errors.New("invalid delimiter")
)

// ValidatePath checks a path for length limits and invalid characters.
// "-" is accepted and stands for standard input or output.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// ValidateLabel checks a stream label. Labels show up in diagnostics, so they
// must be printable on a single line.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLabel)
	}
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidLabel, MaxLabelLength)
	}
	if !utf8.ValidString(label) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidLabel)
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidLabel)
		}
	}
	return nil
}

// ValidateDelimiter checks a field delimiter. It must be non-empty and must
// not contain characters that end a line or start a tag.
func ValidateDelimiter(delim string) error {
	if delim == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDelimiter)
	}
	if strings.ContainsAny(delim, "\r\n<>") {
		return fmt.Errorf("%w: %q may not contain line breaks or angle brackets", ErrInvalidDelimiter, delim)
	}
	return nil
}
