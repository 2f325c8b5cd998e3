package dispatch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

func newEnv() Env {
	return Env{
		Target: "entity 1",
		Self:   doc.MustParse(`{"hp": 3, "name": "ball"}`),
		Global: doc.MustParse(`{"dt": 0.5}`),
	}
}

func TestStandardTableCommands(t *testing.T) {
	assert.Equal(t, []string{"echo", "remove", "set", "set-global"}, NewStandardTable().Commands())
}

func TestSet(t *testing.T) {
	table := NewStandardTable()
	env := newEnv()

	tests := []struct {
		line string
		key  string
		want doc.Node
	}{
		{"set hp 10", "hp", doc.Number(10)},
		{"set alive false", "alive", doc.Bool(false)},
		{"set name red ball", "name", doc.String("red ball")},
		{"set pos.x -2.5", "pos.x", doc.Number(-2.5)},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, OK, table.Dispatch(env, tt.line))
			got, ok := env.Self.Scalar(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetGlobal(t *testing.T) {
	table := NewStandardTable()
	env := newEnv()

	require.Equal(t, OK, table.Dispatch(env, "set-global dt 0.25"))
	assert.Equal(t, 0.25, env.Global.GetFloat("dt", 0))
	assert.Equal(t, 3.0, env.Self.GetFloat("hp", 0), "self untouched")

	env.Global = nil
	assert.Equal(t, ErrFailed, table.Dispatch(env, "set-global dt 1"))
}

func TestRemove(t *testing.T) {
	table := NewStandardTable()
	env := newEnv()

	require.Equal(t, OK, table.Dispatch(env, "remove name"))
	assert.Equal(t, doc.KindNull, env.Self.MemberType("name"))
	assert.Equal(t, ErrBadArguments, table.Dispatch(env, "remove"))
}

func TestDispatchCodes(t *testing.T) {
	table := NewStandardTable()
	env := newEnv()

	assert.Equal(t, ErrBadArguments, table.Dispatch(env, "   "))
	assert.Equal(t, ErrUnknownCommand, table.Dispatch(env, "explode now"))
	assert.Equal(t, ErrBadArguments, table.Dispatch(env, "set hp"))
	assert.Equal(t, OK, table.Dispatch(env, "echo hello there"))
}

func TestRegisterReplacesAndClassifiesErrors(t *testing.T) {
	table := NewTable()
	var got []string
	table.Register("spawn", func(env Env, args []string) error {
		got = args
		return nil
	})
	require.Equal(t, OK, table.Dispatch(Env{}, "spawn  ball   3"))
	assert.Equal(t, []string{"ball", "3"}, got)

	table.Register("spawn", func(Env, []string) error { return errors.New("arena full") })
	assert.Equal(t, ErrFailed, table.Dispatch(Env{}, "spawn ball"))

	table.Register("spawn", func(Env, []string) error { return errors.Join(ErrUsage, errors.New("count")) })
	assert.Equal(t, ErrBadArguments, table.Dispatch(Env{}, "spawn ball"))
}

func TestParseStrWithoutDispatcher(t *testing.T) {
	assert.Equal(t, ErrNoDispatcher, ParseStr(nil, newEnv(), "set hp 1"))
	assert.Equal(t, OK, ParseStr(NewStandardTable(), newEnv(), "set hp 1"))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "UNKNOWN_COMMAND", ErrUnknownCommand.String())
	assert.Equal(t, "NO_DISPATCHER", ErrNoDispatcher.String())
	assert.Equal(t, "Code(42)", Code(42).String())
}

func TestTableConcurrentUse(t *testing.T) {
	table := NewStandardTable()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env := newEnv()
			for j := 0; j < 100; j++ {
				assert.Equal(t, OK, table.Dispatch(env, "set hp 1"))
			}
		}()
		table.Register("noop", func(Env, []string) error { return nil })
	}
	wg.Wait()
	assert.Contains(t, table.Commands(), "noop")
}
