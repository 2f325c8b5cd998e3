package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{"", Path{}},
		{"a", Path{{Key: "a"}}},
		{"a.b", Path{{Key: "a"}, {Key: "b"}}},
		{"list[3]", Path{{Key: "list"}, {Index: 3, IsIndex: true}}},
		{"a[0][1].b", Path{{Key: "a"}, {Index: 0, IsIndex: true}, {Index: 1, IsIndex: true}, {Key: "b"}}},
		{"invokes[0].selfKey", Path{{Key: "invokes"}, {Index: 0, IsIndex: true}, {Key: "selfKey"}}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePath(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{"a..b", ".a", "a.", "a[", "a[x]", "a[-1]", "a]", "a[0]b"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePath(in)
			require.Error(t, err)
			var pe *PathError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestPathHasPrefix(t *testing.T) {
	p, _ := ParsePath("a.b[2].c")
	q, _ := ParsePath("a.b")
	r, _ := ParsePath("a.c")

	assert.True(t, p.HasPrefix(q))
	assert.True(t, p.HasPrefix(p))
	assert.False(t, p.HasPrefix(r))
	assert.False(t, q.HasPrefix(p))
}
