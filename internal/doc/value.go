package doc

import (
	"slices"
	"unicode/utf16"
)

// Node is a sealed interface for document tree values.
// Only Null, Number, Bool, String, Array and Object implement it.
type Node interface {
	node()
}

// Null represents an explicit JSON null.
type Null struct{}

func (Null) node() {}

// Number is the only numeric representation; integers are stored as float64.
type Number float64

func (Number) node() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) node() {}

// String is a string scalar.
type String string

func (String) node() {}

// Array is an ordered sequence of child nodes.
type Array []Node

func (Array) node() {}

// Object maps keys to child nodes. Iteration order is unspecified;
// use SortedKeys for deterministic output.
type Object map[string]Node

func (Object) node() {}

// Kind classifies a member for MemberType.
type Kind int

const (
	// KindNull means the path does not exist or holds null.
	KindNull Kind = iota
	// KindScalar is a number, bool or string.
	KindScalar
	// KindArray is an ordered sequence.
	KindArray
	// KindDocument is a keyed mapping.
	KindDocument
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindDocument:
		return "document"
	default:
		return "null"
	}
}

// KindOf reports the kind of n. A nil node is KindNull.
func KindOf(n Node) Kind {
	switch n.(type) {
	case Number, Bool, String:
		return KindScalar
	case Array:
		return KindArray
	case Object:
		return KindDocument
	default:
		return KindNull
	}
}

// IsScalar reports whether n is a Number, Bool or String.
func IsScalar(n Node) bool {
	return KindOf(n) == KindScalar
}

// SortedKeys returns keys ordered by UTF-16 code units, matching the
// canonical JSON ordering used for serialization.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// compareKeys orders strings by UTF-16 code units.
// Go's native string comparison uses UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Clone returns a deep copy of n. Scalars are values and are returned as is.
func Clone(n Node) Node {
	switch v := n.(type) {
	case Array:
		out := make(Array, len(v))
		for i, elem := range v {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		out := make(Object, len(v))
		for k, elem := range v {
			out[k] = Clone(elem)
		}
		return out
	case nil:
		return Null{}
	default:
		return v
	}
}

// Equal reports deep equality of two nodes. Key order never matters.
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	case nil, Null:
		return KindOf(b) == KindNull
	default:
		return a == b
	}
}
