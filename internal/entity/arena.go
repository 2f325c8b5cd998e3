package entity

import (
	"sort"
	"sync"
)

// Arena owns every live entity and hands out stable IDs. Other components
// hold IDs and resolve them through Get, so no two handles ever alias one
// another across a tick.
//
// Add and Remove take the write lock; the container only calls them
// outside the parallel update phase. Get is safe from any goroutine.
type Arena struct {
	mu    sync.RWMutex
	slots []*Entity
	index map[ID]int
	free  []int
	next  ID
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[ID]int), next: 1}
}

// Add stores e, assigns it a fresh ID and writes the ID into its document.
func (a *Arena) Add(e *Entity) ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next
	a.putLocked(e, id)
	return id
}

// Get resolves id. ok is false for IDs that were never assigned or whose
// entity has been removed.
func (a *Arena) Get(id ID) (*Entity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	slot, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.slots[slot], true
}

// Remove drops id. The slot is reused by a later Add; the ID never is.
func (a *Arena) Remove(id ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.index[id]
	if !ok {
		return false
	}
	delete(a.index, id)
	a.slots[slot] = nil
	a.free = append(a.free, slot)
	return true
}

// Len is the number of live entities.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.index)
}

// IDs returns every live ID in ascending order.
func (a *Arena) IDs() []ID {
	a.mu.RLock()
	ids := make([]ID, 0, len(a.index))
	for id := range a.index {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NextID is the ID the next Add will assign.
func (a *Arena) NextID() ID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.next
}

// SetNextID moves the ID counter forward, used when restoring a snapshot
// so restored and new entities never collide. Values at or below the
// current counter are ignored.
func (a *Arena) SetNextID(next ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if next > a.next {
		a.next = next
	}
}

// AddWithID stores e under a caller-chosen id. It reports false when the
// id is zero or already live.
func (a *Arena) AddWithID(e *Entity, id ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id == 0 {
		return false
	}
	if _, taken := a.index[id]; taken {
		return false
	}
	a.putLocked(e, id)
	return true
}

func (a *Arena) putLocked(e *Entity, id ID) {
	e.id = id
	e.reportDropped(KeyID, e.doc.SetFloat(KeyID, float64(id)))

	var slot int
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[slot] = e
	} else {
		slot = len(a.slots)
		a.slots = append(a.slots, e)
	}
	a.index[id] = slot
	if id >= a.next {
		a.next = id + 1
	}
}
