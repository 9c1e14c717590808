package vertical

import (
	"regexp"
	"strings"

	verrors "github.com/FocuswithJustin/vertmerge/core/errors"
)

// DefaultDelimiter separates positional attributes on token lines.
const DefaultDelimiter = "\t"

// tagPattern matches a whole structural line: <name attrs>, </name>, <name/>.
// Attributes may not contain angle brackets.
var tagPattern = regexp.MustCompile(`^<(/?)([A-Za-z][\w.]*)((?: [^<>]*?)?)(/?)>$`)

// tagName pulls a name out of a tag-shaped line that failed tagPattern.
var tagName = regexp.MustCompile(`^</?([A-Za-z][\w.]*)`)

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	// Delimiter between token fields. Defaults to a single tab.
	Delimiter string
	// SkipBlank makes cursors drop empty lines instead of failing on them.
	SkipBlank bool
	// StructNames restricts structural tags to these names. Other tag-shaped
	// lines are read as tokens. Empty means any well-formed name.
	StructNames []string
}

// Classifier turns raw lines into records. It holds no state besides its
// configuration and is safe for concurrent use.
type Classifier struct {
	delimiter string
	skipBlank bool
	names     map[string]bool
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	c := &Classifier{
		delimiter: opts.Delimiter,
		skipBlank: opts.SkipBlank,
	}
	if c.delimiter == "" {
		c.delimiter = DefaultDelimiter
	}
	if len(opts.StructNames) > 0 {
		c.names = make(map[string]bool, len(opts.StructNames))
		for _, n := range opts.StructNames {
			c.names[n] = true
		}
	}
	return c
}

// Delimiter returns the token field delimiter.
func (c *Classifier) Delimiter() string { return c.delimiter }

// SkipBlank reports whether empty lines are to be skipped.
func (c *Classifier) SkipBlank() bool { return c.skipBlank }

// Classify parses one line, without its line terminator. A trailing carriage
// return is ignored.
func (c *Classifier) Classify(line string) (Record, error) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil, verrors.NewMalformed(line, "empty line")
	}
	if !c.tagShaped(line) {
		return &Token{Fields: strings.Split(line, c.delimiter)}, nil
	}

	m := tagPattern.FindStringSubmatch(line)
	if m == nil {
		if n := tagName.FindStringSubmatch(line); n != nil && !c.structural(n[1]) {
			return &Token{Fields: []string{line}}, nil
		}
		return nil, verrors.NewMalformed(line, "not a valid structural tag")
	}

	closing, name, rest, selfClosing := m[1] == "/", m[2], m[3], m[4] == "/"
	if !c.structural(name) {
		return &Token{Fields: []string{line}}, nil
	}

	if closing {
		if selfClosing {
			return nil, verrors.NewMalformed(line, "tag is both closing and self-closing")
		}
		if strings.TrimSpace(rest) != "" {
			return nil, verrors.NewMalformed(line, "closing tag with attributes")
		}
		return &StructClose{Name: name, Raw: line}, nil
	}

	attrs, err := parseAttrs(rest)
	if err != nil {
		return nil, verrors.NewMalformed(line, err.Error())
	}
	return &StructOpen{Name: name, Attrs: attrs, SelfClosing: selfClosing, Raw: line}, nil
}

// tagShaped reports whether line can only be read as a structural tag: it is
// bracketed and has no field delimiter.
func (c *Classifier) tagShaped(line string) bool {
	return len(line) >= 2 &&
		line[0] == '<' &&
		line[len(line)-1] == '>' &&
		!strings.Contains(line, c.delimiter)
}

func (c *Classifier) structural(name string) bool {
	return c.names == nil || c.names[name]
}
