// Package entity couples a document with its compiled rules.
//
// Everything about an entity lives in its document: position, layer, the
// delete and reload flags, the rule array and the topic subscriptions.
// Rules can therefore move, delete or reconfigure the entity that owns
// them simply by writing to self.
package entity

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/rule"
)

// Document keys with a fixed meaning.
const (
	KeyID     = "id"
	KeyPosX   = "posX"
	KeyPosY   = "posY"
	KeyLayer  = "layer"
	KeyDelete = "flagDelete"
	KeyReload = "flagReload"
)

// Fields names the document fields rules and subscriptions are read from.
type Fields struct {
	Rules         string
	Subscriptions string
}

// DefaultFields is the field layout used unless configured otherwise.
var DefaultFields = Fields{Rules: "invokes", Subscriptions: "invokeSubscriptions"}

// ID is an entity's stable handle. Zero is never assigned.
type ID uint64

// Entity is a document plus its compiled local and broadcast rules.
type Entity struct {
	id  ID
	doc *doc.Document

	mu       sync.Mutex
	compiled bool
	rules    rule.Set
	subs     []string

	dispatcher dispatch.Dispatcher
	global     *doc.Document
}

// New wraps d. Rules are compiled on the first Reload.
func New(d *doc.Document) *Entity {
	if d == nil {
		d = doc.New()
	}
	return &Entity{doc: d}
}

// Parse builds an entity from document text or a file reference, with
// optional |key=value overrides.
func Parse(input string) (*Entity, error) {
	d, err := doc.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse entity: %w", err)
	}
	return New(d), nil
}

// ID returns the handle assigned at insertion, or 0 before that.
func (e *Entity) ID() ID { return e.id }

// Doc returns the backing document.
func (e *Entity) Doc() *doc.Document { return e.doc }

func (e *Entity) String() string { return fmt.Sprintf("entity:%d", e.id) }

// Position reads posX and posY.
func (e *Entity) Position() (x, y float64) {
	return e.doc.GetFloat(KeyPosX, 0), e.doc.GetFloat(KeyPosY, 0)
}

// SetPosition writes posX and posY.
func (e *Entity) SetPosition(x, y float64) {
	e.reportDropped(KeyPosX, e.doc.SetFloat(KeyPosX, x))
	e.reportDropped(KeyPosY, e.doc.SetFloat(KeyPosY, y))
}

// Layer reads the layer attribute.
func (e *Entity) Layer() int { return e.doc.GetInt(KeyLayer, 0) }

// Deleted reports whether the delete flag is set.
func (e *Entity) Deleted() bool { return e.doc.GetBool(KeyDelete, false) }

// MarkDeleted sets the delete flag. The container drops the entity during
// its next restructure.
func (e *Entity) MarkDeleted() { e.reportDropped(KeyDelete, e.doc.SetBool(KeyDelete, true)) }

// RequestReload sets the reload flag.
func (e *Entity) RequestReload() { e.reportDropped(KeyReload, e.doc.SetBool(KeyReload, true)) }

// reportDropped logs a write to a fixed key that the document refused,
// typically because a rule replaced the key with a subdocument.
func (e *Entity) reportDropped(key string, err error) {
	if err != nil {
		slog.Warn("entity attribute not written", "entity_id", uint64(e.id), "key", key, "error", err)
	}
}

// ReloadPending reports whether rules must be recompiled before the next
// update.
func (e *Entity) ReloadPending() bool {
	e.mu.Lock()
	compiled := e.compiled
	e.mu.Unlock()
	return !compiled || e.doc.GetBool(KeyReload, false)
}

// Reload recompiles rules and subscriptions from the document and clears
// the reload flag. Malformed rules are left out of the compiled set; the
// returned errors describe them.
func (e *Entity) Reload(f Fields) []error {
	// Consume the flag before reading, so a reload requested while
	// compiling stays pending for the next update.
	if e.doc.GetBool(KeyReload, false) {
		e.reportDropped(KeyReload, e.doc.SetBool(KeyReload, false))
	}

	rulesNode, _ := e.doc.Lookup(f.Rules)
	set, errs := rule.CompileAll(rulesNode)

	subsNode, _ := e.doc.Lookup(f.Subscriptions)
	subs := topicsOf(subsNode)

	e.mu.Lock()
	e.rules = set
	e.subs = subs
	e.compiled = true
	e.mu.Unlock()

	slog.Debug("rules compiled", "entity_id", uint64(e.id),
		"local", len(set.Local), "broadcast", len(set.Broadcast), "subscriptions", len(subs))
	return errs
}

// Rules returns the compiled rule set.
func (e *Entity) Rules() rule.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules
}

// Subscriptions returns the topics the entity listens on.
func (e *Entity) Subscriptions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subs
}

// Bind attaches the command dispatcher and global document used by
// ParseStr.
func (e *Entity) Bind(d dispatch.Dispatcher, global *doc.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatcher = d
	e.global = global
}

// ParseStr runs a command line against this entity.
func (e *Entity) ParseStr(line string) dispatch.Code {
	e.mu.Lock()
	d, global := e.dispatcher, e.global
	e.mu.Unlock()
	return dispatch.ParseStr(d, dispatch.Env{Target: e.String(), Self: e.doc, Global: global}, line)
}

// topicsOf accepts an array of topic names or a single name. Duplicates
// and empty names are dropped.
func topicsOf(n doc.Node) []string {
	var raw []doc.Node
	switch v := n.(type) {
	case doc.Array:
		raw = v
	case doc.String:
		raw = []doc.Node{v}
	default:
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, item := range raw {
		s, ok := item.(doc.String)
		if !ok || s == "" || seen[string(s)] {
			continue
		}
		seen[string(s)] = true
		out = append(out, string(s))
	}
	return out
}
