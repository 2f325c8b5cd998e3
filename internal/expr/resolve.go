package expr

import (
	"log/slog"
	"strings"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

// Scope names one of the three documents a reference can address.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeOther
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeSelf:
		return "self"
	case ScopeOther:
		return "other"
	case ScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// ParseScope maps "self", "other" or "global" to a Scope.
func ParseScope(name string) (Scope, bool) {
	switch name {
	case "self":
		return ScopeSelf, true
	case "other":
		return ScopeOther, true
	case "global":
		return ScopeGlobal, true
	}
	return 0, false
}

// Resolver substitutes $(scope.path) references against a scope triple
// and evaluates the result. Any of the documents may be nil; references
// into a nil document resolve to 0.
type Resolver struct {
	docs [3]*doc.Document
}

// NewResolver binds a resolver to the self, other and global documents.
func NewResolver(self, other, global *doc.Document) *Resolver {
	return &Resolver{docs: [3]*doc.Document{self, other, global}}
}

// Document returns the document bound to scope s.
func (r *Resolver) Document(s Scope) *doc.Document {
	if s < ScopeSelf || s > ScopeGlobal {
		return nil
	}
	return r.docs[s]
}

// Substitute replaces every $( ... ) group of s, innermost and rightmost
// first. A group holding a reference is replaced by the referenced scalar;
// a group holding an expression is replaced by its value; anything else is
// replaced by its own text. Replacement text is never scanned again, so a
// value that itself contains $( ) is inserted as is.
func (r *Resolver) Substitute(s string) string {
	limit := len(s)
	for {
		start := strings.LastIndex(s[:limit], "$(")
		if start < 0 {
			return s
		}
		end := matchParen(s, start+2)
		if end < 0 {
			slog.Debug("unterminated substitution group", "expr", s, "pos", start)
			s = s[:start] + s[start+2:]
			limit = start
			continue
		}
		inner := strings.TrimSpace(s[start+2 : end])
		s = s[:start] + r.group(inner) + s[end+1:]
		limit = start
	}
}

// Eval substitutes s and evaluates it as an expression. Failures yield 0.
func (r *Resolver) Eval(s string) float64 {
	out := r.Substitute(s)
	v, err := Evaluate(out)
	if err != nil {
		slog.Debug("expression evaluated to fallback", "expr", s, "resolved", out, "error", err)
		return 0
	}
	return v
}

// Bool reports whether s evaluates to a non-zero value.
func (r *Resolver) Bool(s string) bool {
	return r.Eval(s) != 0
}

// Value substitutes s and returns a Number when the result is an
// expression, otherwise the substituted text as a String.
func (r *Resolver) Value(s string) doc.Node {
	out := r.Substitute(s)
	prog, err := Compile(out)
	if err != nil {
		return doc.String(out)
	}
	return doc.Number(prog.Eval())
}

// Text is Value rendered as text.
func (r *Resolver) Text(s string) string {
	str, _ := doc.ToString(r.Value(s))
	return str
}

func (r *Resolver) group(inner string) string {
	if scopeName, path, ok := splitReference(inner); ok {
		scope, known := ParseScope(scopeName)
		if !known {
			return "0"
		}
		return r.lookup(scope, path)
	}
	prog, err := Compile(inner)
	if err != nil {
		return inner
	}
	return doc.FormatNumber(prog.Eval())
}

func (r *Resolver) lookup(scope Scope, path string) string {
	d := r.docs[scope]
	if d == nil {
		return "0"
	}
	n, ok := d.Scalar(path)
	if !ok {
		return "0"
	}
	switch v := n.(type) {
	case doc.Bool:
		if v {
			return "1"
		}
		return "0"
	case doc.Number:
		return doc.FormatNumber(float64(v))
	case doc.String:
		return string(v)
	}
	return "0"
}

// splitReference recognizes scope.path with no whitespace or operators.
func splitReference(s string) (scope, path string, ok bool) {
	dot := strings.IndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return "", "", false
	}
	if !isIdentStart(rune(s[0])) {
		return "", "", false
	}
	for i := 1; i < dot; i++ {
		if !isIdentPart(rune(s[i])) {
			return "", "", false
		}
	}
	for i := dot + 1; i < len(s); i++ {
		c := s[i]
		if !isIdentPart(rune(c)) && c != '.' && c != '[' && c != ']' {
			return "", "", false
		}
	}
	return s[:dot], s[dot+1:], true
}

func matchParen(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
