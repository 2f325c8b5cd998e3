package engine

import (
	"sort"

	"github.com/lbastigk/Nebulite-sub003/internal/entity"
)

// Topics maps a topic to the entities listening on it, in ascending ID
// order. A Topics value is built once per tick and then only read.
type Topics map[string][]entity.ID

// BuildTopics registers every entity in ids under each of its
// subscriptions. Unknown IDs are skipped and duplicates collapse.
func BuildTopics(arena *entity.Arena, ids []entity.ID) Topics {
	t := make(Topics)
	for _, id := range ids {
		e, ok := arena.Get(id)
		if !ok {
			continue
		}
		for _, topic := range e.Subscriptions() {
			t[topic] = append(t[topic], id)
		}
	}
	for topic, list := range t {
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		t[topic] = dedupe(list)
	}
	return t
}

// Listeners returns the entities subscribed to topic.
func (t Topics) Listeners(topic string) []entity.ID {
	return t[topic]
}

// Names returns the topics with at least one listener, sorted.
func (t Topics) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dedupe(sorted []entity.ID) []entity.ID {
	out := sorted[:0]
	for _, id := range sorted {
		if n := len(out); n > 0 && out[n-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
