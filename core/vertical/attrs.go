package vertical

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// attrList is the grammar of the attribute section of an opening tag:
//
//	id="s1" lang="cs"
type attrList struct {
	Pairs []*attrPair `parser:"@@*"`
}

type attrPair struct {
	Key   string `parser:"@Key \"=\""`
	Value string `parser:"@Value"`
}

var attrLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Key", Pattern: `[A-Za-z_][\w.:-]*`},
	{Name: "Value", Pattern: `"[^"]*"`},
	{Name: "Eq", Pattern: `=`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

var attrParser = participle.MustBuild[attrList](
	participle.Lexer(attrLexer),
	participle.Elide("Whitespace"),
)

// parseAttrs parses the text between the tag name and the closing bracket.
// Values are kept verbatim, without escape processing.
func parseAttrs(s string) (Attrs, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	list, err := attrParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid attributes: %w", err)
	}
	attrs := make(Attrs, len(list.Pairs))
	for i, p := range list.Pairs {
		attrs[i] = Attr{Key: p.Key, Value: strings.Trim(p.Value, `"`)}
	}
	return attrs, nil
}
