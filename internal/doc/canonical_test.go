package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Compact(t *testing.T) {
	n := Object{
		"z": Number(1.5),
		"a": Array{Bool(false), String("<&>"), Null{}},
		"m": Object{},
	}
	assert.Equal(t, `{"a":[false,"<&>",null],"m":{},"z":1.5}`, string(MarshalCanonical(n)))
}

func TestMarshalCanonical_KeepsDecomposedText(t *testing.T) {
	decomposed := Object{"k": String("e\u0301")}
	composed := Object{"k": String("\u00e9")}

	assert.NotEqual(t, MarshalCanonical(composed), MarshalCanonical(decomposed))
	assert.Equal(t, "{\"k\":\"e\u0301\"}", string(MarshalCanonical(decomposed)))
}

func TestSerialize_RoundTripsNonNFCText(t *testing.T) {
	d := New()
	require.NoError(t, d.SetNode("names", Object{
		"e\u0301": String("decomposed e\u0301"),
		"\u00e9":  String("composed"),
	}))
	before := d.Node()

	after, err := Parse(d.Serialize(""))
	require.NoError(t, err)

	assert.Equal(t, before, after.Node())
	assert.Equal(t, 2, after.MemberCount("names"))
	assert.Equal(t, d.Digest(), after.Digest())
}

func TestDigest_IgnoresNormalizationForm(t *testing.T) {
	decomposed := FromNode(Object{"k": String("e\u0301")})
	composed := FromNode(Object{"k": String("\u00e9")})

	assert.Equal(t, composed.Digest(), decomposed.Digest())
	assert.NotEqual(t, composed.Serialize(""), decomposed.Serialize(""))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-7, "-7"},
		{2.5, "2.5"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatNumber(tc.in))
		})
	}
}

func TestFromAny_MixedSources(t *testing.T) {
	n, err := FromAny(map[string]any{
		"i":   int64(3),
		"u8":  uint8(4),
		"f":   float32(0.5),
		"nil": nil,
		"arr": []any{"x", true},
		"yml": map[any]any{"k": 1},
	})
	require.NoError(t, err)

	want := Object{
		"i":   Number(3),
		"u8":  Number(4),
		"f":   Number(0.5),
		"nil": Null{},
		"arr": Array{String("x"), Bool(true)},
		"yml": Object{"k": Number(1)},
	}
	assert.True(t, Equal(want, n))

	_, err = FromAny(map[any]any{1: "x"})
	assert.Error(t, err)
	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAny_RoundTripsThroughFromAny(t *testing.T) {
	n := Object{"a": Array{Number(1), Object{"b": String("c")}}, "d": Bool(true), "e": Null{}}

	back, err := FromAny(ToAny(n))
	require.NoError(t, err)
	assert.True(t, Equal(n, back))
}

func TestDecode_RejectsTrailingValues(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	n, err := Decode([]byte(`[1, "two"]`))
	require.NoError(t, err)
	assert.Equal(t, Array{Number(1), String("two")}, n)
}

func TestEqualAndKinds(t *testing.T) {
	assert.True(t, Equal(Object{"a": Number(1)}, Object{"a": Number(1)}))
	assert.False(t, Equal(Object{"a": Number(1)}, Object{"a": String("1")}))
	assert.False(t, Equal(Array{Number(1)}, Array{Number(1), Number(2)}))
	assert.True(t, Equal(nil, Null{}))

	assert.Equal(t, KindScalar, KindOf(String("x")))
	assert.Equal(t, KindArray, KindOf(Array{}))
	assert.Equal(t, KindDocument, KindOf(Object{}))
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, "document", KindDocument.String())
}

func TestSortedKeysUTF16Order(t *testing.T) {
	obj := Object{"a": Null{}, "A": Null{}, "aa": Null{}, "Aa": Null{}, "AA": Null{}}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aa"}, obj.SortedKeys())
}
