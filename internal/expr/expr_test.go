package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"2*3.14", 6.28},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", 4},
		{"0 - 2 ^ 2", -4},
		{"2 ^ -1", 0.5},
		{"10 % 4", 2},
		{"7 / 2", 3.5},
		{".5 + 1e1", 10.5},
		{"max(1, 5, 3) - min(4, 2)", 3},
		{"atan2(0, 1)", 0},
		{"floor(2.7) + ceil(0.2) + abs(-3)", 6},
		{"pow(2, 10)", 1024},
		{"mod(9, 4)", 1},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Evaluate(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Logic(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1 and 1", 1},
		{"1 and 0", 0},
		{"0 or 2", 1},
		{"not 0", 1},
		{"not(5)", 0},
		{"!1", 0},
		{"3 > 2 && 2 >= 2", 1},
		{"1 == 1.0", 1},
		{"1 != 1", 0},
		{"2 < 1 || 1 <= 0", 0},
		{"true and not false", 1},
		{"1 + 1 == 2", 1},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Evaluate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluate_NeverPanicsAndFallsBackToZero(t *testing.T) {
	assert.Equal(t, 0.0, Eval("1 / 0"))
	assert.Equal(t, 0.0, Eval("5 % 0"))
	assert.Equal(t, 0.0, Eval("sqrt(-1)"), "NaN maps to 0")
	assert.Equal(t, 0.0, Eval("log(0)"), "-Inf maps to 0")

	for _, bad := range []string{"", "1 +", "(1", "1)", "foo", "foo(1)", "sin()", "atan2(1)", "1 $ 2", "1..2", "orc"} {
		t.Run(bad, func(t *testing.T) {
			_, err := Evaluate(bad)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
			assert.Equal(t, 0.0, Eval(bad))
		})
	}
}

func TestResolver_SubtractsOtherFromSelf(t *testing.T) {
	self := doc.MustParse(`{"X": 25}`)
	other := doc.MustParse(`{"X": 10}`)

	r := NewResolver(self, other, doc.New())
	assert.Equal(t, 15.0, r.Eval("$( $(self.X) - $(other.X) )"))
}

func TestResolver_LogicalGuard(t *testing.T) {
	other := doc.MustParse(`{"isPlayer": 1, "closestObjectRight": 20, "Moving": 0}`)

	r := NewResolver(doc.New(), other, doc.New())
	guard := "$( $(other.isPlayer) and $($(other.closestObjectRight) > 15) and $(not($(other.Moving))) )"
	assert.Equal(t, 1.0, r.Eval(guard))

	require.NoError(t, other.SetFloat("Moving", 1))
	assert.Equal(t, 0.0, r.Eval(guard))
}

func TestResolver_SubstitutesBeforeEvaluating(t *testing.T) {
	self := doc.MustParse(`{"U": 100, "f": 50}`)
	global := doc.MustParse(`{"pi": 3.141, "t": 1}`)
	r := NewResolver(self, nil, global)

	src := "$(self.U) * sin(2*$(global.pi)*$(self.f)*$(global.t))"
	assert.Equal(t, "100 * sin(2*3.141*50*1)", r.Substitute(src))

	got := r.Eval(src)
	assert.False(t, math.IsNaN(got) || math.IsInf(got, 0))
	assert.InDelta(t, 100*math.Sin(2*3.141*50), got, 1e-9)
}

func TestResolver_LiteralArithmeticWithoutMarkers(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	assert.Equal(t, "2*3.14", r.Substitute("2*3.14"))
	assert.InDelta(t, 6.28, r.Eval("2*3.14"), 1e-12)
}

func TestResolver_MissingReferencesResolveToZero(t *testing.T) {
	self := doc.MustParse(`{"stats": {"hp": 3}, "flag": true, "name": "orc"}`)
	r := NewResolver(self, nil, nil)

	tests := []struct {
		in   string
		want string
	}{
		{"$(self.missing)", "0"},
		{"$(self.stats)", "0"},
		{"$(other.x)", "0"},
		{"$(global.x)", "0"},
		{"$(bogus.x)", "0"},
		{"$(self.flag)", "1"},
		{"$(self.stats.hp)", "3"},
		{"$(self.name)", "orc"},
		{"hp=$(self.stats.hp)", "hp=3"},
		{"$(orc)", "orc"},
		{"$(1+1)", "2"},
		{"$(self.stats.hp", "self.stats.hp"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Substitute(tc.in))
		})
	}
}

func TestResolver_SubstitutedTextIsNotRescanned(t *testing.T) {
	self := doc.MustParse(`{"loop": "$(self.loop)"}`)
	r := NewResolver(self, nil, nil)

	assert.Equal(t, "$(self.loop)", r.Substitute("$(self.loop)"))
}

func TestResolver_NegativeReferenceSquares(t *testing.T) {
	self := doc.MustParse(`{"vx": -3, "vy": 4}`)
	r := NewResolver(self, nil, nil)

	assert.Equal(t, "-3^2", r.Substitute("$(self.vx)^2"))
	assert.Equal(t, 9.0, r.Eval("$(self.vx)^2"))
	assert.Equal(t, r.Eval("$(self.vx)*$(self.vx)"), r.Eval("$(self.vx)^2"))
	assert.Equal(t, 5.0, r.Eval("sqrt($(self.vx)^2 + $(self.vy)^2)"))
}

func TestResolver_ValueKeepsTextWhenNotAnExpression(t *testing.T) {
	self := doc.MustParse(`{"name": "orc", "hp": 4}`)
	r := NewResolver(self, nil, nil)

	assert.Equal(t, doc.Number(8), r.Value("$(self.hp) * 2"))
	assert.Equal(t, doc.String("orc"), r.Value("$(self.name)"))
	assert.Equal(t, "boss-orc", r.Text("boss-$(self.name)"))
	assert.Equal(t, "8", r.Text("$(self.hp) * 2"))
	assert.True(t, r.Bool("$(self.hp) > 3"))
}

func TestParseScope(t *testing.T) {
	for _, s := range []Scope{ScopeSelf, ScopeOther, ScopeGlobal} {
		got, ok := ParseScope(s.String())
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseScope("parent")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	valid := []string{
		"1",
		"$(self.id) != $(other.id)",
		"$( $(other.isPlayer) and $($(other.closestObjectRight) > 15) and $(not($(other.Moving))) )",
		"$(global.time.t) > 2",
	}
	for _, s := range valid {
		assert.NoError(t, Check(s), s)
	}

	invalid := []string{
		"",
		"$(self.id",
		"$(self.id) !=",
		"$(hello world)",
		"$(self.x) $(other.x)",
	}
	for _, s := range invalid {
		assert.Error(t, Check(s), s)
	}

	assert.NoError(t, CheckMarkers("boss-$(self.name)"))
	assert.Error(t, CheckMarkers("boss-$(self.name"))
}
