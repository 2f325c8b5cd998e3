package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []TickTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, t := range e.Trace {
		fmt.Fprintf(&buf, "  [tick %d] center=%s active=%d moved=%d deleted=%d firings=%d\n",
			t.Tick, t.Center, t.Active, t.Moved, t.Deleted, t.Stats.Firings())
	}
	return buf.String()
}

// assertValue compares an entity document key at the selected tick.
// The document is read from the journal, so earlier ticks can be checked
// too.
func (h *Harness) assertValue(ctx context.Context, a Assertion, result *Result) error {
	tick := tickOf(a, result)
	history, err := h.store.EntityHistory(ctx, h.runID, a.Entity)
	if err != nil {
		return err
	}
	for _, es := range history {
		if es.Tick == tick {
			return compareKey(AssertValue, fmt.Sprintf("entity %d tick %d", a.Entity, tick), es.Document, a, result.Trace)
		}
	}
	return &AssertionError{
		Type:     AssertValue,
		Expected: fmt.Sprintf("entity %d journaled at tick %d", a.Entity, tick),
		Actual:   "not journaled",
		Trace:    result.Trace,
	}
}

// assertGlobalValue compares a global document key at the selected tick.
func (h *Harness) assertGlobalValue(ctx context.Context, a Assertion, result *Result) error {
	tick := tickOf(a, result)
	rec, err := h.store.ReadTick(ctx, h.runID, tick)
	if err != nil {
		return err
	}
	return compareKey(AssertGlobalValue, fmt.Sprintf("global tick %d", tick), rec.Global, a, result.Trace)
}

// compareKey looks a.Key up in the journaled document text and compares
// it with a.Expect by canonical encoding, so 3 and 3.0 are equal.
func compareKey(kind, where, text string, a Assertion, trace []TickTrace) error {
	root, err := doc.Decode([]byte(text))
	if err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	want, err := doc.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("%s: expect: %w", where, err)
	}

	got, ok := doc.FromNode(root).Lookup(a.Key)
	if !ok {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s %s = %s", where, a.Key, doc.MarshalCanonical(want)),
			Actual:   "key not found",
			Trace:    trace,
		}
	}
	gotText, wantText := doc.MarshalCanonical(got), doc.MarshalCanonical(want)
	if !bytes.Equal(gotText, wantText) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s %s = %s", where, a.Key, wantText),
			Actual:   string(gotText),
			Trace:    trace,
		}
	}
	return nil
}

// assertTile checks where the container currently indexes an entity.
func assertTile(c *world.Container, a Assertion, trace []TickTrace) error {
	want := world.Tile{X: a.Tile[0], Y: a.Tile[1]}
	got, _, ok := c.Locate(entity.ID(a.Entity))
	if !ok {
		return &AssertionError{
			Type:     AssertTile,
			Expected: fmt.Sprintf("entity %d in tile %s", a.Entity, want),
			Actual:   "not indexed",
			Trace:    trace,
		}
	}
	if got != want {
		return &AssertionError{
			Type:     AssertTile,
			Expected: fmt.Sprintf("entity %d in tile %s", a.Entity, want),
			Actual:   got.String(),
			Trace:    trace,
		}
	}
	return nil
}

// assertAbsent checks that an entity has left both the arena and the
// spatial index.
func assertAbsent(c *world.Container, a Assertion, trace []TickTrace) error {
	id := entity.ID(a.Entity)
	_, live := c.Sim().Arena().Get(id)
	tile, _, indexed := c.Locate(id)
	if live || indexed {
		actual := "still in arena"
		if indexed {
			actual = fmt.Sprintf("still indexed in tile %s", tile)
		}
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("entity %d deleted", a.Entity),
			Actual:   actual,
			Trace:    trace,
		}
	}
	return nil
}

// assertCount checks the number of indexed entities.
func assertCount(c *world.Container, a Assertion, trace []TickTrace) error {
	if got := c.Count(); got != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d entities", *a.Count),
			Actual:   fmt.Sprintf("%d entities", got),
			Trace:    trace,
		}
	}
	return nil
}
