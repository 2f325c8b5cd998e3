package entity

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

const orc = `{
	"posX": 12.5, "posY": -3, "layer": 2,
	"invokeSubscriptions": ["collision", "gravity", "collision", ""],
	"invokes": [
		{"logicalArg": "1", "selfKey": "t", "selfValue": "$(self.t) + 1"},
		{"logicalArg": "$(self.id) != $(other.id)", "topic": "collision", "otherKey": "hp", "otherValue": "-1", "otherChangeType": "add"},
		{"logicalArg": "$(", "selfKey": "broken"}
	]
}`

func TestEntity_ReloadCompilesRulesAndSubscriptions(t *testing.T) {
	e, err := Parse(orc)
	require.NoError(t, err)
	assert.True(t, e.ReloadPending(), "never compiled")

	errs := e.Reload(DefaultFields)
	require.Len(t, errs, 1)
	assert.False(t, e.ReloadPending())

	rules := e.Rules()
	assert.Len(t, rules.Local, 1)
	assert.Len(t, rules.Broadcast, 1)
	assert.Equal(t, []string{"collision", "gravity"}, e.Subscriptions())
}

func TestEntity_ReloadFlagRoundTrip(t *testing.T) {
	e := New(doc.MustParse(`{"invokes": []}`))
	e.Reload(DefaultFields)
	require.False(t, e.ReloadPending())

	e.RequestReload()
	assert.True(t, e.ReloadPending())

	require.NoError(t, e.Doc().SetNode("invokes", doc.Array{
		doc.Object{"logicalArg": doc.String("1"), "selfKey": doc.String("x")},
	}))
	e.Reload(DefaultFields)
	assert.False(t, e.ReloadPending())
	assert.False(t, e.Doc().GetBool(KeyReload, true))
	assert.Len(t, e.Rules().Local, 1)
}

func TestEntity_ReloadRequestedAfterCompileStaysPending(t *testing.T) {
	e := New(doc.MustParse(`{"invokes": [], "flagReload": true}`))
	e.Reload(DefaultFields)
	require.False(t, e.ReloadPending())

	e.RequestReload()
	assert.True(t, e.ReloadPending())
	assert.True(t, e.Doc().GetBool(KeyReload, false))
}

func TestEntity_RefusedWritesAreLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	e := New(doc.MustParse(`{"posX": {"nested": 1}, "posY": 4}`))
	e.SetPosition(7, 8)

	_, ok := e.Doc().GetSubdocument(KeyPosX)
	assert.True(t, ok, "posX stays a document")
	assert.Equal(t, 8.0, e.Doc().GetFloat(KeyPosY, 0))
	assert.Contains(t, logs.String(), "entity attribute not written")
	assert.Contains(t, logs.String(), "key=posX")
	assert.NotContains(t, logs.String(), "key=posY")
}

func TestEntity_CustomFields(t *testing.T) {
	e := New(doc.MustParse(`{"logic": [{"logicalArg": "1", "topic": "t", "selfKey": "x"}], "listens": "t"}`))
	e.Reload(Fields{Rules: "logic", Subscriptions: "listens"})

	assert.Len(t, e.Rules().Broadcast, 1)
	assert.Equal(t, []string{"t"}, e.Subscriptions())
}

func TestEntity_PositionLayerAndFlags(t *testing.T) {
	e, err := Parse(orc)
	require.NoError(t, err)

	x, y := e.Position()
	assert.Equal(t, 12.5, x)
	assert.Equal(t, -3.0, y)
	assert.Equal(t, 2, e.Layer())

	e.SetPosition(1, 2)
	x, y = e.Position()
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 2.0, y)

	assert.False(t, e.Deleted())
	e.MarkDeleted()
	assert.True(t, e.Deleted())
}

func TestEntity_ParseStr(t *testing.T) {
	e := New(nil)
	assert.Equal(t, dispatch.ErrNoDispatcher, e.ParseStr("delete"))

	table := dispatch.NewStandardTable()
	RegisterCommands(table)
	global := doc.New()
	e.Bind(table, global)

	assert.Equal(t, dispatch.OK, e.ParseStr("position 4 5"))
	x, y := e.Position()
	assert.Equal(t, 4.0, x)
	assert.Equal(t, 5.0, y)

	assert.Equal(t, dispatch.OK, e.ParseStr("set-global score 10"))
	assert.Equal(t, 10.0, global.GetFloat("score", 0))

	assert.Equal(t, dispatch.ErrBadArguments, e.ParseStr("position x"))
	assert.Equal(t, dispatch.ErrUnknownCommand, e.ParseStr("teleport"))

	assert.Equal(t, dispatch.OK, e.ParseStr("delete"))
	assert.True(t, e.Deleted())
}

func TestArena_StableIDs(t *testing.T) {
	a := NewArena()
	e1, e2, e3 := New(nil), New(nil), New(nil)

	id1 := a.Add(e1)
	id2 := a.Add(e2)
	assert.Equal(t, ID(1), id1)
	assert.Equal(t, ID(2), id2)
	assert.Equal(t, 2.0, e2.Doc().GetFloat(KeyID, 0))

	require.True(t, a.Remove(id1))
	assert.False(t, a.Remove(id1))
	_, ok := a.Get(id1)
	assert.False(t, ok)

	id3 := a.Add(e3)
	assert.Equal(t, ID(3), id3, "ids are never reused")
	got, ok := a.Get(id3)
	require.True(t, ok)
	assert.Same(t, e3, got)

	assert.Equal(t, []ID{2, 3}, a.IDs())
	assert.Equal(t, 2, a.Len())
}

func TestArena_AddWithID(t *testing.T) {
	a := NewArena()
	require.True(t, a.AddWithID(New(nil), 7))
	assert.False(t, a.AddWithID(New(nil), 7))
	assert.False(t, a.AddWithID(New(nil), 0))

	assert.Equal(t, ID(8), a.Add(New(nil)))

	a.SetNextID(3)
	assert.Equal(t, ID(9), a.NextID())
	a.SetNextID(20)
	assert.Equal(t, ID(20), a.NextID())
}
