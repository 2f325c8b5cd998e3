package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// Commands returns the dispatch table the CLI wires up: the standard
// document commands plus the entity lifecycle commands.
func Commands() *dispatch.Table {
	t := dispatch.NewStandardTable()
	entity.RegisterCommands(t)
	return t
}

// NewContainer builds a container over an empty global document with the
// standard commands and a fixed run id. It is closed when the test ends.
//
// engineOpts and worldOpts are applied after the defaults.
func NewContainer(t testing.TB, runID string, engineOpts []engine.Option, worldOpts ...world.Option) *world.Container {
	t.Helper()
	opts := []engine.Option{
		engine.WithDispatcher(Commands()),
		engine.WithRunIDGenerator(NewFixedRunID(runID)),
	}
	sim := engine.New(doc.New(), entity.NewArena(), append(opts, engineOpts...)...)
	c := world.New(sim, worldOpts...)
	t.Cleanup(c.Close)
	return c
}

// Spawn parses src as an entity document and inserts it into c.
func Spawn(t testing.TB, c *world.Container, src string) *entity.Entity {
	t.Helper()
	e, err := entity.Parse(src)
	require.NoError(t, err)
	c.Insert(e)
	return e
}
