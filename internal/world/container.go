// Package world is the spatial container: it owns the entity population,
// indexes it by tile and batch, and drives per-tick updates over a 3x3
// tile neighborhood.
//
// A tick has two phases. Phase A hands every batch of the neighborhood to
// the worker pool, where each entity is updated by the engine; the tile
// index is read-only during this phase. Phase B runs on the calling
// goroutine and restructures the index: deleted entities are dropped and
// entities whose position now maps to a different tile are moved.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
)

// DefaultBatchCapacity is the number of entities per batch unless
// configured otherwise.
const DefaultBatchCapacity = 64

// DefaultResolution is the tile size used until SetResolution is called.
var DefaultResolution = Resolution{W: 1080, H: 1080}

// Report summarizes one UpdateNeighborhood call.
type Report struct {
	Tick    int64        `json:"tick" msgpack:"tick"`
	Center  Tile         `json:"center" msgpack:"center"`
	Active  int          `json:"active" msgpack:"active"`
	Batches int          `json:"batches" msgpack:"batches"`
	Moved   int          `json:"moved" msgpack:"moved"`
	Deleted int          `json:"deleted" msgpack:"deleted"`
	Stats   engine.Stats `json:"stats" msgpack:"stats"`
}

// Container partitions entities into tiles and batches.
//
// Insert, UpdateNeighborhood, ReinsertAll, SetResolution and Remove must
// be called from one goroutine at a time; the queries are safe
// concurrently with each other but not with those mutators.
type Container struct {
	sim      *engine.Sim
	res      Resolution
	batchCap int
	signed   bool
	workers  int

	tiles map[Tile][][]entity.ID
	where map[entity.ID]Tile
	pool  *Pool
}

// Option configures a Container.
type Option func(*Container)

// WithBatchCapacity sets the maximum entities per batch.
func WithBatchCapacity(n int) Option {
	return func(c *Container) {
		if n > 0 {
			c.batchCap = n
		}
	}
}

// WithWorkers sets the worker pool size. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Container) {
		c.workers = n
	}
}

// WithSignedTiles maps negative positions to negative tiles instead of
// folding them onto the positive axis.
func WithSignedTiles(signed bool) Option {
	return func(c *Container) {
		c.signed = signed
	}
}

// WithResolution sets the initial tile size. Invalid sizes are ignored.
func WithResolution(r Resolution) Option {
	return func(c *Container) {
		if r.Valid() {
			c.res = r
		}
	}
}

// New creates an empty container driving sim. Call Close to stop the
// worker pool.
func New(sim *engine.Sim, opts ...Option) *Container {
	c := &Container{
		sim:      sim,
		res:      DefaultResolution,
		batchCap: DefaultBatchCapacity,
		tiles:    make(map[Tile][][]entity.ID),
		where:    make(map[entity.ID]Tile),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = NewPool(c.workers)
	return c
}

// Sim returns the simulation context.
func (c *Container) Sim() *engine.Sim { return c.sim }

// Resolution returns the current tile size.
func (c *Container) Resolution() Resolution { return c.res }

// BatchCapacity is the maximum number of entities per batch.
func (c *Container) BatchCapacity() int { return c.batchCap }

// Signed reports whether negative positions map to negative tiles.
func (c *Container) Signed() bool { return c.signed }

// Close stops the worker pool.
func (c *Container) Close() {
	c.pool.Close()
}

// Insert adds e to the arena (assigning its ID) unless it already lives
// there, compiles its rules and files it under the tile of its position.
func (c *Container) Insert(e *entity.Entity) entity.ID {
	arena := c.sim.Arena()
	if got, ok := arena.Get(e.ID()); !ok || got != e {
		arena.Add(e)
	}
	c.sim.Prepare(e)
	c.place(e)
	return e.ID()
}

// place appends e to the first batch of its tile with room, opening a new
// batch when all are full.
func (c *Container) place(e *entity.Entity) {
	id := e.ID()
	if _, already := c.where[id]; already {
		return
	}
	x, y := e.Position()
	t := TileOf(x, y, c.res, c.signed)

	batches := c.tiles[t]
	placed := false
	for i := range batches {
		if len(batches[i]) < c.batchCap {
			batches[i] = append(batches[i], id)
			placed = true
			break
		}
	}
	if !placed {
		batch := make([]entity.ID, 0, c.batchCap)
		batches = append(batches, append(batch, id))
	}
	c.tiles[t] = batches
	c.where[id] = t
}

// Adopt files e, already in the arena, at the end of batch b of tile t
// regardless of its position. b may name one batch past the last to open
// a new one. Restoring a captured layout this way keeps the per-batch
// processing order of the original run.
func (c *Container) Adopt(e *entity.Entity, t Tile, b int) error {
	id := e.ID()
	if got, ok := c.sim.Arena().Get(id); !ok || got != e {
		return fmt.Errorf("adopt entity %d: not in the arena", id)
	}
	if _, already := c.where[id]; already {
		return fmt.Errorf("adopt entity %d: already indexed", id)
	}
	batches := c.tiles[t]
	if b < 0 || b > len(batches) {
		return fmt.Errorf("adopt entity %d: tile %s has no batch %d", id, t, b)
	}
	if b == len(batches) {
		batches = append(batches, make([]entity.ID, 0, c.batchCap))
	}
	if len(batches[b]) >= c.batchCap {
		return fmt.Errorf("adopt entity %d: batch %d of tile %s is full", id, b, t)
	}
	c.sim.Prepare(e)
	batches[b] = append(batches[b], id)
	c.tiles[t] = batches
	c.where[id] = t
	return nil
}

// unplace removes id from its batch, dropping emptied batches and tiles.
func (c *Container) unplace(id entity.ID) {
	t, ok := c.where[id]
	if !ok {
		return
	}
	delete(c.where, id)

	batches := c.tiles[t]
	for i, batch := range batches {
		for j, member := range batch {
			if member != id {
				continue
			}
			batch = append(batch[:j], batch[j+1:]...)
			if len(batch) == 0 {
				batches = append(batches[:i], batches[i+1:]...)
			} else {
				batches[i] = batch
			}
			if len(batches) == 0 {
				delete(c.tiles, t)
			} else {
				c.tiles[t] = batches
			}
			return
		}
	}
}

// Remove drops an entity from the index and the arena.
func (c *Container) Remove(id entity.ID) bool {
	if _, ok := c.where[id]; !ok {
		return false
	}
	c.unplace(id)
	c.sim.Arena().Remove(id)
	return true
}

// Neighborhood returns the tiles updated around center: the 3x3 block,
// clamped at zero on each axis unless tiles are signed.
func (c *Container) Neighborhood(center Tile) []Tile {
	lo := func(v int) int {
		if c.signed {
			return v - 1
		}
		return max(0, v-1)
	}
	var out []Tile
	for x := lo(center.X); x <= center.X+1; x++ {
		for y := lo(center.Y); y <= center.Y+1; y++ {
			out = append(out, Tile{X: x, Y: y})
		}
	}
	return out
}

// UpdateNeighborhood runs one tick over the 3x3 tiles around
// (centerX, centerY).
func (c *Container) UpdateNeighborhood(centerX, centerY int) Report {
	center := Tile{X: centerX, Y: centerY}
	rep := Report{Center: center}

	var batches [][]entity.ID
	var active []entity.ID
	for _, t := range c.Neighborhood(center) {
		for _, batch := range c.tiles[t] {
			snapshot := append([]entity.ID(nil), batch...)
			batches = append(batches, snapshot)
			active = append(active, snapshot...)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	rep.Active = len(active)
	rep.Batches = len(batches)
	rep.Tick = c.sim.BeginTick(active)

	// Phase A: one task per batch.
	var mu sync.Mutex
	arena := c.sim.Arena()
	tasks := make([]func(), len(batches))
	for i, batch := range batches {
		tasks[i] = func() {
			var local engine.Stats
			for _, id := range batch {
				if e, ok := arena.Get(id); ok {
					local.Add(c.sim.Update(e))
				}
			}
			mu.Lock()
			rep.Stats.Add(local)
			mu.Unlock()
		}
	}
	c.pool.Run(tasks)

	// Phase B: restructure.
	for _, id := range active {
		e, ok := arena.Get(id)
		if !ok {
			c.unplace(id)
			continue
		}
		if e.Deleted() {
			c.unplace(id)
			arena.Remove(id)
			rep.Deleted++
			continue
		}
		x, y := e.Position()
		if t := TileOf(x, y, c.res, c.signed); t != c.where[id] {
			c.unplace(id)
			c.place(e)
			rep.Moved++
		}
	}

	slog.Debug("tick complete", "tick", rep.Tick, "center", center.String(),
		"active", rep.Active, "batches", rep.Batches, "moved", rep.Moved, "deleted", rep.Deleted,
		"firings", rep.Stats.Firings())
	return rep
}

// ReinsertAll rebuilds the index from scratch, dropping deleted entities.
// Used after the tile size changes.
func (c *Container) ReinsertAll() {
	ids := c.Entities()
	c.tiles = make(map[Tile][][]entity.ID)
	c.where = make(map[entity.ID]Tile)

	arena := c.sim.Arena()
	for _, id := range ids {
		e, ok := arena.Get(id)
		if !ok {
			continue
		}
		if e.Deleted() {
			arena.Remove(id)
			continue
		}
		c.place(e)
	}
}

// ErrInvalidResolution is returned for non-positive tile sizes.
var ErrInvalidResolution = errors.New("resolution must be positive")

// SetResolution changes the tile size and reinserts every entity.
func (c *Container) SetResolution(w, h float64) error {
	r := Resolution{W: w, H: h}
	if !r.Valid() {
		return fmt.Errorf("set resolution %gx%g: %w", w, h, ErrInvalidResolution)
	}
	if r == c.res {
		return nil
	}
	c.res = r
	c.ReinsertAll()
	return nil
}

// Locate returns the tile and batch index holding id.
func (c *Container) Locate(id entity.ID) (Tile, int, bool) {
	t, ok := c.where[id]
	if !ok {
		return Tile{}, 0, false
	}
	for i, batch := range c.tiles[t] {
		for _, member := range batch {
			if member == id {
				return t, i, true
			}
		}
	}
	return Tile{}, 0, false
}

// Entities returns every indexed entity in ascending ID order.
func (c *Container) Entities() []entity.ID {
	ids := make([]entity.ID, 0, len(c.where))
	for id := range c.where {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count is the number of indexed entities.
func (c *Container) Count() int { return len(c.where) }

// Tiles returns the occupied tiles in (x, y) order.
func (c *Container) Tiles() []Tile {
	out := make([]Tile, 0, len(c.tiles))
	for t := range c.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Batches returns a copy of the batches of tile t. Unknown tiles have none.
func (c *Container) Batches(t Tile) [][]entity.ID {
	src := c.tiles[t]
	out := make([][]entity.ID, len(src))
	for i, batch := range src {
		out[i] = append([]entity.ID(nil), batch...)
	}
	return out
}
