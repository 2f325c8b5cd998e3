package engine

import (
	"sync"

	"github.com/lbastigk/Nebulite-sub003/internal/entity"
)

// firing identifies one evaluation of a broadcast rule against one
// listener: the owning entity, the rule's index in its source array and
// the listener.
type firing struct {
	owner  entity.ID
	rule   int
	target entity.ID
}

const ledgerShards = 16

// Ledger remembers which (rule, other) pairs were already evaluated in the
// current tick so that each pair is evaluated at most once, even if an
// entity is reached twice or a listener is registered twice.
//
// The ledger is sharded by owner so workers updating different entities
// rarely contend. Thread-safe.
type Ledger struct {
	shards [ledgerShards]ledgerShard
}

type ledgerShard struct {
	mu   sync.Mutex
	seen map[firing]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{}
	for i := range l.shards {
		l.shards[i].seen = make(map[firing]struct{})
	}
	return l
}

// Claim records the pair and reports true the first time it is seen in
// the current tick, false afterwards.
func (l *Ledger) Claim(owner entity.ID, rule int, target entity.ID) bool {
	key := firing{owner: owner, rule: rule, target: target}
	s := &l.shards[uint64(owner)%ledgerShards]

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Seen reports whether the pair was claimed in the current tick.
func (l *Ledger) Seen(owner entity.ID, rule int, target entity.ID) bool {
	key := firing{owner: owner, rule: rule, target: target}
	s := &l.shards[uint64(owner)%ledgerShards]

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Reset forgets every pair. Called at the start of each tick.
func (l *Ledger) Reset() {
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		clear(s.seen)
		s.mu.Unlock()
	}
}

// Len is the number of pairs claimed in the current tick.
func (l *Ledger) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.seen)
		s.mu.Unlock()
	}
	return n
}
