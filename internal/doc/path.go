package doc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Segment is one step of a Path: either a mapping key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed member address.
//
// Grammar: segment ('.' segment | '[' index ']')*
//
//	"pos.x"          → Key(pos), Key(x)
//	"inventory[2].n" → Key(inventory), Index(2), Key(n)
//
// The empty string is the root path.
type Path []Segment

// PathError reports a malformed path or a structural conflict at a path.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Path, e.Reason)
}

// parsed paths are immutable, so they are shared between documents
var pathCache sync.Map // map[string]Path

// ParsePath parses a path string. Results are cached; callers must not
// modify the returned slice.
func ParsePath(s string) (Path, error) {
	if cached, ok := pathCache.Load(s); ok {
		return cached.(Path), nil
	}
	p, err := parsePath(s)
	if err != nil {
		return nil, err
	}
	pathCache.Store(s, p)
	return p, nil
}

func parsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}

	var p Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch {
		case s[i] == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, &PathError{Path: s, Reason: "unterminated index"}
			}
			raw := s[i+1 : i+end]
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return nil, &PathError{Path: s, Reason: fmt.Sprintf("invalid index %q", raw)}
			}
			p = append(p, Segment{Index: idx, IsIndex: true})
			i += end + 1
			expectKey = false

		case s[i] == '.':
			if expectKey {
				return nil, &PathError{Path: s, Reason: "empty segment"}
			}
			i++
			expectKey = true
			if i == len(s) {
				return nil, &PathError{Path: s, Reason: "trailing '.'"}
			}

		default:
			if !expectKey {
				return nil, &PathError{Path: s, Reason: "missing '.' before key"}
			}
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' && s[end] != ']' {
				end++
			}
			if end < len(s) && s[end] == ']' {
				return nil, &PathError{Path: s, Reason: "unexpected ']'"}
			}
			p = append(p, Segment{Key: s[i:end]})
			i = end
			expectKey = false
		}
	}
	return p, nil
}

// String renders the canonical form used as the cache key.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// HasPrefix reports whether q is p or a descendant of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// lookup walks the tree. Missing members and index overruns are not found.
func lookup(n Node, p Path) (Node, bool) {
	cur := n
	for _, seg := range p {
		if seg.IsIndex {
			arr, ok := cur.(Array)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// put writes v at p below cur and returns the (possibly new) container.
// Missing intermediates become objects, or arrays padded with empty objects.
// A scalar in the way is a structural conflict and nothing is written.
func put(cur Node, p Path, v Node) (Node, error) {
	if len(p) == 0 {
		return v, nil
	}
	seg := p[0]

	if seg.IsIndex {
		var arr Array
		switch c := cur.(type) {
		case Array:
			arr = c
		case nil, Null:
			arr = Array{}
		default:
			return cur, &PathError{Path: p.String(), Reason: "index into non-array"}
		}
		for len(arr) <= seg.Index {
			arr = append(arr, Object{})
		}
		child, err := put(arr[seg.Index], p[1:], v)
		if err != nil {
			return cur, err
		}
		arr[seg.Index] = child
		return arr, nil
	}

	var obj Object
	switch c := cur.(type) {
	case Object:
		obj = c
	case nil, Null:
		obj = Object{}
	default:
		return cur, &PathError{Path: p.String(), Reason: "member of non-document"}
	}
	child, err := put(obj[seg.Key], p[1:], v)
	if err != nil {
		return cur, err
	}
	obj[seg.Key] = child
	return obj, nil
}

// remove deletes the member at p. Array elements are spliced out.
func remove(cur Node, p Path) (Node, bool) {
	if len(p) == 0 {
		return cur, false
	}
	seg := p[0]
	last := len(p) == 1

	if seg.IsIndex {
		arr, ok := cur.(Array)
		if !ok || seg.Index >= len(arr) {
			return cur, false
		}
		if last {
			return append(arr[:seg.Index], arr[seg.Index+1:]...), true
		}
		child, removed := remove(arr[seg.Index], p[1:])
		arr[seg.Index] = child
		return arr, removed
	}

	obj, ok := cur.(Object)
	if !ok {
		return cur, false
	}
	child, exists := obj[seg.Key]
	if !exists {
		return cur, false
	}
	if last {
		delete(obj, seg.Key)
		return obj, true
	}
	child, removed := remove(child, p[1:])
	obj[seg.Key] = child
	return obj, removed
}
