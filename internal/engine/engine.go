package engine

import (
	"log/slog"
	"sync/atomic"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/expr"
	"github.com/lbastigk/Nebulite-sub003/internal/rule"
)

// Sim is the simulation context threaded through the container and the
// engine: the global document, the entity arena, the command dispatcher,
// and the per-tick state (tick clock, topic registry, firing ledger).
//
// Thread-safety model:
//   - BeginTick: sequential phase only
//   - Update: safe from any number of workers once BeginTick returned
//   - Prepare: sequential phase only
type Sim struct {
	global     *doc.Document
	arena      *entity.Arena
	dispatcher dispatch.Dispatcher
	fields     entity.Fields
	clock      *Clock
	ledger     *Ledger
	maxFirings int
	runIDs     RunIDGenerator
	runID      string

	topics atomic.Pointer[Topics]
}

// Option configures a Sim.
type Option func(*Sim)

// WithMaxFirings sets the per-entity per-tick firing quota.
//
// Default: DefaultMaxFirings. Zero or less disables the quota.
func WithMaxFirings(n int) Option {
	return func(s *Sim) {
		s.maxFirings = n
	}
}

// WithDispatcher sets the command dispatcher behind ParseStr.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(s *Sim) {
		s.dispatcher = d
	}
}

// WithFields sets the document fields rules and subscriptions are read
// from.
func WithFields(f entity.Fields) Option {
	return func(s *Sim) {
		s.fields = f
	}
}

// WithClock resumes from a given tick clock.
func WithClock(c *Clock) Option {
	return func(s *Sim) {
		s.clock = c
	}
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Sim) {
		s.runIDs = g
	}
}

// New creates a simulation context. A nil global starts empty; a nil
// arena gets a fresh one.
func New(global *doc.Document, arena *entity.Arena, opts ...Option) *Sim {
	if global == nil {
		global = doc.New()
	}
	if arena == nil {
		arena = entity.NewArena()
	}
	s := &Sim{
		global:     global,
		arena:      arena,
		fields:     entity.DefaultFields,
		clock:      NewClock(),
		ledger:     NewLedger(),
		maxFirings: DefaultMaxFirings,
		runIDs:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runID = s.runIDs.Generate()
	s.topics.Store(&Topics{})
	return s
}

// Global returns the shared global document.
func (s *Sim) Global() *doc.Document { return s.global }

// Arena returns the entity arena.
func (s *Sim) Arena() *entity.Arena { return s.arena }

// Clock returns the tick clock.
func (s *Sim) Clock() *Clock { return s.clock }

// RunID identifies this run in the journal and snapshots.
func (s *Sim) RunID() string { return s.runID }

// Fields returns the configured rule and subscription fields.
func (s *Sim) Fields() entity.Fields { return s.fields }

// Topics returns the registry of the current tick.
func (s *Sim) Topics() Topics { return *s.topics.Load() }

// ParseStr runs a command line against the global document.
func (s *Sim) ParseStr(line string) dispatch.Code {
	return dispatch.ParseStr(s.dispatcher, dispatch.Env{Target: "global", Self: s.global, Global: s.global}, line)
}

// Prepare binds e to this context and compiles its rules if needed. The
// container calls it when an entity is inserted so the entity's
// subscriptions are known before its first tick.
func (s *Sim) Prepare(e *entity.Entity) {
	e.Bind(s.dispatcher, s.global)
	if e.ReloadPending() {
		s.reload(e)
	}
}

// BeginTick advances the clock, clears the firing ledger and registers the
// listeners among the active entities. Entities whose reload flag is set
// are recompiled first so the registry sees their current subscriptions.
func (s *Sim) BeginTick(active []entity.ID) int64 {
	tick := s.clock.Next()
	s.ledger.Reset()
	for _, id := range active {
		if e, ok := s.arena.Get(id); ok && e.ReloadPending() {
			s.reload(e)
		}
	}
	topics := BuildTopics(s.arena, active)
	s.topics.Store(&topics)
	slog.Debug("tick begins", "tick", tick, "active", len(active), "topics", len(topics))
	return tick
}

// Update runs one entity's rules for the current tick.
//
//  1. Recompile if the reload flag is set.
//  2. Local pass: each local rule with self = other = e.
//  3. Broadcast pass: each broadcast rule against every listener of its
//     topic, e included, with self = e and other = the listener.
//
// Assignments apply immediately to the live documents. Each (rule, other)
// pair is evaluated at most once per tick. Nothing here fails the tick:
// errors are logged and counted in the returned Stats.
func (s *Sim) Update(e *entity.Entity) Stats {
	st := Stats{Updated: 1}
	if e.ReloadPending() {
		st.SkippedRules += s.reload(e)
	}

	rules := e.Rules()
	quota := NewQuota(e.String(), s.maxFirings)
	id := e.ID()

	for _, r := range rules.Local {
		if !s.ledger.Claim(id, r.Index, id) {
			continue
		}
		res := expr.NewResolver(e.Doc(), e.Doc(), s.global)
		if !res.Bool(r.Guard) {
			continue
		}
		if !s.spend(quota, e, r, &st) {
			return st
		}
		s.apply(e, e, r, res, &st)
		st.LocalFirings++
	}

	topics := s.Topics()
	for _, r := range rules.Broadcast {
		for _, oid := range topics.Listeners(r.Topic) {
			if !s.ledger.Claim(id, r.Index, oid) {
				continue
			}
			other, ok := s.arena.Get(oid)
			if !ok {
				continue
			}
			st.BroadcastEvaluations++

			res := expr.NewResolver(e.Doc(), other.Doc(), s.global)
			if !res.Bool(r.Guard) {
				continue
			}
			if !s.spend(quota, e, r, &st) {
				return st
			}
			s.apply(e, other, r, res, &st)
			st.BroadcastFirings++
		}
	}
	return st
}

// spend charges one firing. It reports false once the quota is exhausted,
// which ends the entity's update for this tick.
func (s *Sim) spend(q *Quota, e *entity.Entity, r *rule.Entry, st *Stats) bool {
	err := q.Check()
	if err == nil {
		return true
	}
	fe, _ := err.(*FiringsExceededError)
	rerr := NewQuotaError(uint64(e.ID()), r.String(), fe)
	slog.Warn("firing quota exceeded", "entity_id", uint64(e.ID()), "rule", r.String(), "error", rerr)
	st.QuotaHits++
	return false
}

func (s *Sim) apply(self, other *entity.Entity, r *rule.Entry, res *expr.Resolver, st *Stats) {
	for _, a := range r.Assignments {
		target := res.Document(a.Scope)

		var err error
		switch a.Op {
		case rule.OpSet:
			err = target.SetNode(a.Key, res.Value(a.Value))
		case rule.OpAdd:
			_, err = target.Add(a.Key, res.Eval(a.Value))
		case rule.OpCall:
			line := res.Substitute(a.Value)
			if code := s.call(a.Scope, self, other, line); code != dispatch.OK {
				st.DispatchFailures++
				derr := NewDispatchError(uint64(self.ID()), r.String(), line, code.String())
				slog.Warn("call assignment failed", "entity_id", uint64(self.ID()), "rule", r.String(), "error", derr)
			}
			continue
		}
		if err != nil {
			st.RejectedWrites++
			werr := NewStructuralMisuseError(uint64(self.ID()), r.String(), a.Key, err)
			slog.Warn("assignment rejected", "entity_id", uint64(self.ID()), "rule", r.String(),
				"scope", a.Scope.String(), "error", werr)
		}
	}
}

func (s *Sim) call(scope expr.Scope, self, other *entity.Entity, line string) dispatch.Code {
	switch scope {
	case expr.ScopeSelf:
		return self.ParseStr(line)
	case expr.ScopeOther:
		return other.ParseStr(line)
	default:
		return s.ParseStr(line)
	}
}

// reload recompiles e's rules and returns how many were skipped.
func (s *Sim) reload(e *entity.Entity) int {
	errs := e.Reload(s.fields)
	for _, err := range errs {
		rerr := NewMalformedRuleError(uint64(e.ID()), err)
		slog.Warn("skipping malformed rule", "entity_id", uint64(e.ID()), "error", rerr)
	}
	return len(errs)
}
