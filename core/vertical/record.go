// Package vertical reads and writes corpus files in the vertical format.
//
// A vertical file holds one record per line: either a structural tag that
// opens or closes a region of the document (<doc>, <p>, <s>, ...), or a token
// line carrying the token's positional attributes separated by tabs.
//
//	<s id="1">
//	cat	NN
//	sat	VBD
//	</s>
//
// Lines are classified by a Classifier, streamed lazily by a Cursor and
// serialized back by a Writer.
package vertical

import "strings"

// Kind names a record variant. The values appear in diagnostics.
type Kind string

const (
	KindOpen  Kind = "open"
	KindClose Kind = "close"
	KindEmpty Kind = "empty"
	KindToken Kind = "token"
)

// Record is one classified line. The set of implementations is closed:
// *StructOpen, *StructClose and *Token.
type Record interface {
	Kind() Kind
	record()
}

// Attr is one key="value" pair of a structural tag.
type Attr struct {
	Key   string
	Value string
}

// Attrs keeps structural attributes in source order.
type Attrs []Attr

// Get returns the value of the first attribute named key.
func (a Attrs) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// StructOpen is an opening structural tag. SelfClosing marks <name/> forms,
// which open and close the structure on the same line.
type StructOpen struct {
	Name        string
	Attrs       Attrs
	SelfClosing bool
	// Raw is the line exactly as read, used for verbatim pass-through.
	Raw string
}

// StructClose is a closing structural tag.
type StructClose struct {
	Name string
	Raw  string
}

// Token is a token line split into its positional attributes.
type Token struct {
	Fields []string
}

func (r *StructOpen) Kind() Kind {
	if r.SelfClosing {
		return KindEmpty
	}
	return KindOpen
}

func (r *StructClose) Kind() Kind { return KindClose }
func (r *Token) Kind() Kind       { return KindToken }

func (*StructOpen) record()  {}
func (*StructClose) record() {}
func (*Token) record()       {}

// Tag formats the opening tag from Name and Attrs.
func (r *StructOpen) Tag() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(r.Name)
	for _, a := range r.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(a.Value)
		b.WriteByte('"')
	}
	if r.SelfClosing {
		b.WriteByte('/')
	}
	b.WriteByte('>')
	return b.String()
}

// Tag formats the closing tag.
func (r *StructClose) Tag() string {
	return "</" + r.Name + ">"
}

// Name returns the structure name of r, or "" for tokens.
func Name(r Record) string {
	switch r := r.(type) {
	case *StructOpen:
		return r.Name
	case *StructClose:
		return r.Name
	}
	return ""
}
