package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
)

func newTestSim(t *testing.T, opts ...Option) *Sim {
	t.Helper()
	opts = append([]Option{WithRunIDGenerator(NewFixedGenerator("run-test"))}, opts...)
	return New(doc.New(), entity.NewArena(), opts...)
}

func spawn(t *testing.T, s *Sim, src string) *entity.Entity {
	t.Helper()
	e, err := entity.Parse(src)
	require.NoError(t, err)
	s.Arena().Add(e)
	s.Prepare(e)
	return e
}

// tick runs one sequential tick over every entity in the arena.
func tick(s *Sim) Stats {
	ids := s.Arena().IDs()
	s.BeginTick(ids)
	var total Stats
	for _, id := range ids {
		e, _ := s.Arena().Get(id)
		total.Add(s.Update(e))
	}
	return total
}

const pusher = `{
	"invokeSubscriptions": ["contact"],
	"invokes": [{
		"logicalArg": "$(self.id) != $(other.id)",
		"topic": "contact",
		"otherKey": "hits", "otherValue": "1", "otherChangeType": "add"
	}]
}`

func TestUpdate_BroadcastFiresOncePerOrderedPair(t *testing.T) {
	s := newTestSim(t)
	a := spawn(t, s, pusher)
	b := spawn(t, s, pusher)

	st := tick(s)

	assert.Equal(t, 1.0, a.Doc().GetFloat("hits", 0), "b fired on a once")
	assert.Equal(t, 1.0, b.Doc().GetFloat("hits", 0), "a fired on b once")
	assert.Equal(t, 2, st.BroadcastFirings)
	assert.Equal(t, 4, st.BroadcastEvaluations, "each rule sees both listeners, self included")
	assert.Equal(t, 4, s.ledger.Len())
}

func TestUpdate_SecondUpdateInSameTickIsANoop(t *testing.T) {
	s := newTestSim(t)
	a := spawn(t, s, pusher)
	b := spawn(t, s, pusher)

	s.BeginTick(s.Arena().IDs())
	s.Update(a)
	st := s.Update(a)
	s.Update(b)

	assert.Equal(t, 0, st.BroadcastEvaluations)
	assert.Equal(t, 1.0, b.Doc().GetFloat("hits", 0))

	tick(s)
	assert.Equal(t, 2.0, b.Doc().GetFloat("hits", 0), "ledger resets between ticks")
}

func TestUpdate_LocalRulesUseSelfAsOther(t *testing.T) {
	s := newTestSim(t)
	require.NoError(t, s.Global().SetFloat("dt", 0.5))
	e := spawn(t, s, `{
		"posX": 1, "vx": 4,
		"invokes": [
			{"logicalArg": "1", "selfKey": "posX", "selfValue": "$(self.posX) + $(other.vx) * $(global.dt)"},
			{"logicalArg": "$(self.posX) > 100", "selfKey": "never", "selfValue": "1"},
			{"logicalArg": "1", "globalKey": "frames", "globalValue": "1", "globalChangeType": "add"}
		]
	}`)

	st := tick(s)
	assert.Equal(t, 3.0, e.Doc().GetFloat("posX", 0))
	assert.Equal(t, doc.KindNull, e.Doc().MemberType("never"))
	assert.Equal(t, 1.0, s.Global().GetFloat("frames", 0))
	assert.Equal(t, 2, st.LocalFirings)

	tick(s)
	assert.Equal(t, 5.0, e.Doc().GetFloat("posX", 0))
	assert.Equal(t, 2.0, s.Global().GetFloat("frames", 0))
	assert.Equal(t, int64(2), s.Clock().Current())
}

func TestUpdate_ValueKeepsStrings(t *testing.T) {
	s := newTestSim(t)
	e := spawn(t, s, `{"name": "orc", "invokes": [
		{"logicalArg": "1", "selfKey": "title", "selfValue": "boss-$(self.name)"}
	]}`)

	tick(s)
	assert.Equal(t, "boss-orc", e.Doc().GetString("title", ""))
}

func TestUpdate_MalformedRulesAreSkippedNotFatal(t *testing.T) {
	s := newTestSim(t)
	e := entity.New(doc.MustParse(`{"invokes": [
		{"logicalArg": "$(self.x", "selfKey": "a", "selfValue": "1"},
		{"logicalArg": "1", "selfKey": "b", "selfValue": "2"},
		{"selfKey": "c"}
	]}`))
	s.Arena().Add(e)

	s.BeginTick(nil)
	st := s.Update(e)
	assert.Equal(t, 2, st.SkippedRules)
	assert.Equal(t, 1, st.LocalFirings)
	assert.Equal(t, 2.0, e.Doc().GetFloat("b", 0))
}

func TestUpdate_StructuralMisuseIsRejectedAndCounted(t *testing.T) {
	s := newTestSim(t)
	e := spawn(t, s, `{"stats": {"hp": 1}, "invokes": [
		{"logicalArg": "1", "selfKey": "stats", "selfValue": "5"},
		{"logicalArg": "1", "selfKey": "stats.hp", "selfValue": "1", "selfChangeType": "add"}
	]}`)

	st := tick(s)
	assert.Equal(t, 1, st.RejectedWrites)
	assert.Equal(t, 2.0, e.Doc().GetFloat("stats.hp", 0))
	assert.Equal(t, doc.KindDocument, e.Doc().MemberType("stats"))
}

func TestUpdate_ReloadFlagRecompilesBeforeRules(t *testing.T) {
	s := newTestSim(t)
	e := spawn(t, s, `{"invokes": [{"logicalArg": "1", "selfKey": "n", "selfValue": "1", "selfChangeType": "add"}]}`)
	tick(s)
	require.Equal(t, 1.0, e.Doc().GetFloat("n", 0))

	require.NoError(t, e.Doc().SetNode("invokes", doc.Array{doc.Object{
		"logicalArg": doc.String("1"), "selfKey": doc.String("n"),
		"selfValue": doc.String("10"), "selfChangeType": doc.String("add"),
	}}))
	tick(s)
	assert.Equal(t, 2.0, e.Doc().GetFloat("n", 0), "old rules until reload is requested")

	e.RequestReload()
	tick(s)
	assert.Equal(t, 12.0, e.Doc().GetFloat("n", 0))
	assert.False(t, e.ReloadPending())
}

func TestUpdate_QuotaStopsRunawayBroadcast(t *testing.T) {
	s := newTestSim(t, WithMaxFirings(3))
	src := `{"invokeSubscriptions": ["all"], "invokes": [
		{"logicalArg": "1", "topic": "all", "otherKey": "seen", "otherValue": "1", "otherChangeType": "add"}
	]}`
	for i := 0; i < 5; i++ {
		spawn(t, s, src)
	}

	ids := s.Arena().IDs()
	s.BeginTick(ids)
	first, _ := s.Arena().Get(ids[0])
	st := s.Update(first)

	assert.Equal(t, 3, st.BroadcastFirings)
	assert.Equal(t, 1, st.QuotaHits)
}

func TestUpdate_CallRoutesToScopeParseStr(t *testing.T) {
	table := dispatch.NewStandardTable()
	entity.RegisterCommands(table)
	s := newTestSim(t, WithDispatcher(table))

	victim := spawn(t, s, `{"hp": 0, "invokeSubscriptions": ["attack"]}`)
	spawn(t, s, `{"invokes": [
		{"logicalArg": "$(other.hp) <= 0", "topic": "attack", "otherValue": "delete", "otherChangeType": "call"},
		{"logicalArg": "1", "globalValue": "set-global last $(self.id)", "globalChangeType": "call"},
		{"logicalArg": "1", "selfValue": "explode now", "selfChangeType": "call"}
	]}`)

	st := tick(s)
	assert.True(t, victim.Deleted())
	assert.Equal(t, 2.0, s.Global().GetFloat("last", 0))
	assert.Equal(t, 1, st.DispatchFailures, "explode is not a command")
}

func TestUpdate_WithoutDispatcherCallsFailSoftly(t *testing.T) {
	s := newTestSim(t)
	spawn(t, s, `{"invokes": [{"logicalArg": "1", "selfValue": "delete", "selfChangeType": "call"}]}`)

	st := tick(s)
	assert.Equal(t, 1, st.DispatchFailures)
	assert.Equal(t, dispatch.ErrNoDispatcher, s.ParseStr("echo hi"))
}

func TestUpdate_ConcurrentWorkersNeverLoseAdds(t *testing.T) {
	s := newTestSim(t)
	src := `{"invokeSubscriptions": ["ping"], "invokes": [
		{"logicalArg": "$(self.id) != $(other.id)", "topic": "ping", "otherKey": "pings", "otherValue": "1", "otherChangeType": "add"},
		{"logicalArg": "1", "globalKey": "updates", "globalValue": "1", "globalChangeType": "add"}
	]}`
	const n = 24
	for i := 0; i < n; i++ {
		spawn(t, s, src)
	}

	ids := s.Arena().IDs()
	s.BeginTick(ids)
	var wg sync.WaitGroup
	for _, id := range ids {
		e, _ := s.Arena().Get(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(e)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(n), s.Global().GetFloat("updates", 0))
	for _, id := range ids {
		e, _ := s.Arena().Get(id)
		assert.Equal(t, float64(n-1), e.Doc().GetFloat("pings", 0), "entity %d", id)
	}
}

func TestBuildTopics_SortedAndDeduplicated(t *testing.T) {
	s := newTestSim(t)
	spawn(t, s, `{"invokeSubscriptions": ["b", "a"]}`)
	spawn(t, s, `{"invokeSubscriptions": ["a"]}`)
	spawn(t, s, `{}`)

	ids := s.Arena().IDs()
	topics := BuildTopics(s.Arena(), append(ids, ids[0], 99))

	assert.Equal(t, []entity.ID{1, 2}, topics.Listeners("a"))
	assert.Equal(t, []entity.ID{1}, topics.Listeners("b"))
	assert.Nil(t, topics.Listeners("c"))
	assert.Equal(t, []string{"a", "b"}, topics.Names())
}

func TestRuntimeErrorHelpers(t *testing.T) {
	quota := NewQuota("entity:1", 1)
	require.NoError(t, quota.Check())
	err := quota.Check()
	require.Error(t, err)
	assert.True(t, IsFiringsExceededError(err))
	assert.True(t, IsQuotaError(err))

	var fe *FiringsExceededError
	require.True(t, errors.As(err, &fe))
	wrapped := NewQuotaError(1, "rule[0]@t", fe)
	assert.True(t, IsQuotaError(wrapped))
	assert.Equal(t, "2", wrapped.Details["firings"])

	malformed := NewMalformedRuleError(3, errors.New("bad guard"))
	assert.True(t, IsMalformedRule(malformed))
	assert.False(t, IsQuotaError(malformed))
	assert.Contains(t, malformed.Error(), "MALFORMED_RULE")

	assert.True(t, IsDispatchError(NewDispatchError(1, "rule[0]", "boom", "UNKNOWN_COMMAND")))
	assert.True(t, IsStructuralMisuse(NewStructuralMisuseError(1, "rule[0]", "stats", errors.New("target is a document"))))
}

func TestLedger_ClaimOncePerTick(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.Claim(1, 0, 2))
	assert.False(t, l.Claim(1, 0, 2))
	assert.True(t, l.Claim(2, 0, 1), "ordered pairs are distinct")
	assert.True(t, l.Claim(1, 1, 2), "different rule")
	assert.True(t, l.Seen(1, 0, 2))
	assert.Equal(t, 3, l.Len())

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Claim(1, 0, 2))
}
