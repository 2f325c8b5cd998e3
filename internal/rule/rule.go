// Package rule compiles rule documents into immutable entries.
//
// A rule document is a JSON object with a guard ("logicalArg"), an optional
// topic, and up to three assignments, one per scope:
//
//	{
//	  "logicalArg": "$(self.id) != $(other.id)",
//	  "topic": "collision",
//	  "otherKey": "hp", "otherValue": "-1", "otherChangeType": "add"
//	}
//
// Rules without a topic are local: they run with other bound to self.
package rule

import (
	"fmt"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/expr"
)

// DomainRule separates rule hashes from other digests.
const DomainRule = "nebulite/rule/v1"

// Op is the assignment operator.
type Op string

const (
	OpSet  Op = "set"
	OpAdd  Op = "add"
	OpCall Op = "call"
)

// Assignment writes the resolved Value into Key of the Scope document.
// For OpCall the resolved value is a command line and Key is unused.
type Assignment struct {
	Scope expr.Scope
	Key   string
	Op    Op
	Value string
}

func (a Assignment) String() string {
	if a.Op == OpCall {
		return fmt.Sprintf("%s.call(%s)", a.Scope, a.Value)
	}
	return fmt.Sprintf("%s.%s %s %s", a.Scope, a.Key, a.Op, a.Value)
}

// Entry is a compiled rule. Entries are immutable once compiled.
type Entry struct {
	// Index is the position of the rule in its source array.
	Index int

	Guard       string
	Topic       string
	Assignments []Assignment

	// Hash identifies the rule by content.
	Hash string
}

// IsLocal reports whether the rule has no topic.
func (e *Entry) IsLocal() bool { return e.Topic == "" }

func (e *Entry) String() string {
	if e.IsLocal() {
		return fmt.Sprintf("rule[%d]", e.Index)
	}
	return fmt.Sprintf("rule[%d]@%s", e.Index, e.Topic)
}

// Set holds the compiled rules of one entity split by kind.
type Set struct {
	Local     []*Entry
	Broadcast []*Entry
}

// Len is the total number of compiled rules.
func (s Set) Len() int { return len(s.Local) + len(s.Broadcast) }

// Topics returns the distinct topics of the broadcast rules in order of
// first appearance.
func (s Set) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.Broadcast {
		if !seen[e.Topic] {
			seen[e.Topic] = true
			out = append(out, e.Topic)
		}
	}
	return out
}

func hashEntry(n doc.Node) string {
	return doc.HashWithDomain(DomainRule, doc.MarshalCanonical(n))
}
