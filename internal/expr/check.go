package expr

import (
	"fmt"
	"strings"
)

// Check reports whether s is well formed as a guard: every $( has a
// matching ), every group holds a reference or an expression, and the
// text outside the groups is an expression. References are not looked
// up, so the check is independent of any document.
func Check(s string) error {
	limit := len(s)
	for {
		start := strings.LastIndex(s[:limit], "$(")
		if start < 0 {
			break
		}
		end := matchParen(s, start+2)
		if end < 0 {
			return &SyntaxError{Expr: s, Pos: start, Message: "unterminated $("}
		}
		inner := strings.TrimSpace(s[start+2 : end])
		if _, _, ok := splitReference(inner); !ok {
			if _, err := Compile(inner); err != nil {
				return fmt.Errorf("group %q: %w", inner, err)
			}
		}
		s = s[:start] + "0" + s[end+1:]
		limit = start
	}
	_, err := Compile(s)
	return err
}

// CheckMarkers reports unterminated $( groups only. Value expressions may
// legitimately resolve to plain text, so nothing else is checked.
func CheckMarkers(s string) error {
	limit := len(s)
	for {
		start := strings.LastIndex(s[:limit], "$(")
		if start < 0 {
			return nil
		}
		if matchParen(s, start+2) < 0 {
			return &SyntaxError{Expr: s, Pos: start, Message: "unterminated $("}
		}
		limit = start
	}
}
