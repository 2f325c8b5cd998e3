package doc

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// cacheEntry is one scalar in the cache overlay.
// dirty entries are newer than the tree; clean entries mirror it.
type cacheEntry struct {
	path  Path
	value Node
	dirty bool

	// conversion memo, reset whenever the value changes
	num    float64
	hasNum bool
	str    string
	hasStr bool
}

// Document is a mutex-guarded tree with a scalar cache overlay.
//
// Thread-safety: all methods are safe for concurrent use. Broadcast rules
// running on different workers may read and write the same Document; every
// public method holds the mutex for its whole duration and never calls
// another public method, so the lock is never re-entered.
type Document struct {
	mu    sync.Mutex
	root  Object
	cache map[string]*cacheEntry
}

// New returns an empty document.
func New() *Document {
	return &Document{
		root:  Object{},
		cache: make(map[string]*cacheEntry),
	}
}

// FromNode returns a document owning a deep copy of obj.
// Non-object roots yield an empty document.
func FromNode(n Node) *Document {
	d := New()
	if obj, ok := n.(Object); ok {
		d.root = Clone(obj).(Object)
	}
	return d
}

// Parse builds a document from text accepted by Deserialize.
func Parse(input string) (*Document, error) {
	d := New()
	if err := d.Deserialize(input); err != nil {
		return d, err
	}
	return d, nil
}

// MustParse is Parse for literals in tests and fixtures. It panics on error.
func MustParse(input string) *Document {
	d, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return d
}

// Get reads the scalar at path converted to T, or def on a miss or a failed
// conversion. It never fails.
func Get[T Scalar](d *Document, path string, def T) T {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entryLocked(path)
	if e == nil {
		return def
	}
	return convertEntry(e, def)
}

// Set writes a scalar at path through the cache.
// It returns a *PathError if the path is malformed or would overwrite a
// document or array; in that case nothing changes.
func Set[T Scalar](d *Document, path string, v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setScalarLocked(path, toNode(v))
}

// convertEntry converts using the entry memo for the common number/string reads.
func convertEntry[T Scalar](e *cacheEntry, def T) T {
	switch any(def).(type) {
	case float64:
		if !e.hasNum {
			f, ok := ToFloat(e.value)
			if !ok {
				return def
			}
			e.num, e.hasNum = f, true
		}
		return any(e.num).(T)
	case string:
		if !e.hasStr {
			s, ok := ToString(e.value)
			if !ok {
				return def
			}
			e.str, e.hasStr = s, true
		}
		return any(e.str).(T)
	}
	out, ok := fromNode[T](e.value)
	if !ok {
		return def
	}
	return out
}

// GetFloat is Get for float64.
func (d *Document) GetFloat(path string, def float64) float64 { return Get(d, path, def) }

// GetString is Get for string.
func (d *Document) GetString(path string, def string) string { return Get(d, path, def) }

// GetBool is Get for bool.
func (d *Document) GetBool(path string, def bool) bool { return Get(d, path, def) }

// GetInt is Get for int.
func (d *Document) GetInt(path string, def int) int { return Get(d, path, def) }

// SetFloat is Set for float64.
func (d *Document) SetFloat(path string, v float64) error { return Set(d, path, v) }

// SetString is Set for string.
func (d *Document) SetString(path string, v string) error { return Set(d, path, v) }

// SetBool is Set for bool.
func (d *Document) SetBool(path string, v bool) error { return Set(d, path, v) }

// Scalar returns the raw scalar node at path.
func (d *Document) Scalar(path string) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entryLocked(path)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Add adds delta to the number at path (missing or non-numeric counts as 0)
// and returns the new value. The read and write happen under one lock, so
// concurrent adds from several workers never lose an update.
func (d *Document) Add(path string, delta float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := 0.0
	if e := d.entryLocked(path); e != nil {
		if f, ok := ToFloat(e.value); ok {
			cur = f
		}
	}
	next := cur + delta
	if err := d.setScalarLocked(path, Number(next)); err != nil {
		return cur, err
	}
	return next, nil
}

// SetNode writes any node at path. Scalars go through the cache; arrays and
// objects are written into the tree after flushing.
func (d *Document) SetNode(path string, n Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if IsScalar(n) {
		return d.setScalarLocked(path, n)
	}
	return d.setTreeLocked(path, Clone(n))
}

// Lookup returns a deep copy of the member at path.
func (d *Document) Lookup(path string) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	if e, ok := d.cache[p.String()]; ok {
		return e.value, true
	}
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok {
		return nil, false
	}
	return Clone(n), true
}

// GetSubdocument returns a copy of the mapping at path.
// ok is false when the path is missing or not a document.
func (d *Document) GetSubdocument(path string) (*Document, bool) {
	n, ok := d.Lookup(path)
	if !ok {
		return nil, false
	}
	obj, isObj := n.(Object)
	if !isObj {
		return nil, false
	}
	sub := New()
	sub.root = obj
	return sub, true
}

// SetSubdocument replaces the member at path with a copy of sub.
// Writing to the empty path replaces the whole document.
func (d *Document) SetSubdocument(path string, sub *Document) error {
	if sub == d {
		sub = d.Clone()
	}
	n := sub.Node()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setTreeLocked(path, n)
}

// Remove deletes path from both the cache and the tree.
// It reports whether anything was removed.
func (d *Document) Remove(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil || len(p) == 0 {
		return false
	}
	d.flushLocked()
	root, removed := remove(d.root, p)
	d.root = root.(Object)
	// Reconciled entries carry no extra information; dropping them all also
	// covers array splices that shift later indices.
	clear(d.cache)
	return removed
}

// MemberType classifies the member at path.
func (d *Document) MemberType(path string) Kind {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil {
		return KindNull
	}
	if _, ok := d.cache[p.String()]; ok {
		return KindScalar
	}
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok {
		return KindNull
	}
	return KindOf(n)
}

// MemberCount returns the number of elements of an array, keys of a
// document, 1 for a scalar and 0 for a missing member.
func (d *Document) MemberCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil {
		return 0
	}
	if _, ok := d.cache[p.String()]; ok {
		return 1
	}
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok {
		return 0
	}
	switch v := n.(type) {
	case Array:
		return len(v)
	case Object:
		return len(v)
	case Null:
		return 0
	default:
		return 1
	}
}

// Keys returns the sorted member names of the document at path.
func (d *Document) Keys(path string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil {
		return nil
	}
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok {
		return nil
	}
	obj, ok := n.(Object)
	if !ok {
		return nil
	}
	return obj.SortedKeys()
}

// Flush reconciles dirty cache entries into the tree.
// Flushing a flushed document is a no-op.
func (d *Document) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
}

// Node returns a flushed deep copy of the whole tree.
func (d *Document) Node() Object {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.flushLocked()
	return Clone(d.root).(Object)
}

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	return FromNode(d.Node())
}

// Serialize flushes and renders the member at path (empty for the whole
// document) as pretty JSON with sorted keys. A missing path renders "{}".
func (d *Document) Serialize(path string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := ParsePath(path)
	if err != nil {
		return "{}"
	}
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok {
		return "{}"
	}
	return string(MarshalPretty(n))
}

// Deserialize replaces the document content.
//
// input is either literal JSON text starting with '{' or a file path,
// optionally followed by '|key=value' overrides applied through the normal
// Set path:
//
//	{"hp": 10}|hp=12|name=orc
//	./entities/orc.json|posX=64
//
// On a parse failure the document is left empty and the error is returned.
func (d *Document) Deserialize(input string) error {
	root, overrides, err := loadInput(input)

	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.cache)
	d.root = Object{}
	if err != nil {
		slog.Warn("document parse failed", "error", err)
		return err
	}
	d.root = root

	for _, ov := range overrides {
		key, value, found := strings.Cut(ov, "=")
		if !found || key == "" {
			slog.Warn("ignoring malformed override", "override", ov)
			continue
		}
		if err := d.setScalarLocked(key, InferScalar(value)); err != nil {
			slog.Warn("override rejected", "override", ov, "error", err)
		}
	}
	return nil
}

// loadInput resolves inline text or a file reference into a root object
// plus the raw override strings that followed it.
func loadInput(input string) (Object, []string, error) {
	trimmed := strings.TrimSpace(input)
	var (
		text string
		rest string
	)

	if strings.HasPrefix(trimmed, "{") {
		n, consumed, err := decodePrefix(trimmed)
		if err != nil {
			return nil, nil, fmt.Errorf("parse document: %w", err)
		}
		obj, ok := n.(Object)
		if !ok {
			return nil, nil, fmt.Errorf("parse document: root is not an object")
		}
		rest = strings.TrimSpace(trimmed[consumed:])
		if rest != "" && !strings.HasPrefix(rest, "|") {
			return nil, nil, fmt.Errorf("parse document: unexpected trailing text %q", rest)
		}
		return obj, splitOverrides(rest), nil
	}

	file, rest, _ := strings.Cut(trimmed, "|")
	raw, err := os.ReadFile(strings.TrimSpace(file))
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}
	text = string(raw)
	n, err := Decode([]byte(text))
	if err != nil {
		return nil, nil, fmt.Errorf("parse document %s: %w", file, err)
	}
	obj, ok := n.(Object)
	if !ok {
		return nil, nil, fmt.Errorf("parse document %s: root is not an object", file)
	}
	if rest != "" {
		rest = "|" + rest
	}
	return obj, splitOverrides(rest), nil
}

func splitOverrides(rest string) []string {
	var out []string
	for _, part := range strings.Split(rest, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// entryLocked returns the cache entry for path, loading clean scalars from
// the tree on a miss. Nil means not found or not a scalar.
func (d *Document) entryLocked(path string) *cacheEntry {
	p, err := ParsePath(path)
	if err != nil || len(p) == 0 {
		return nil
	}
	key := p.String()
	if e, ok := d.cache[key]; ok {
		return e
	}

	// The tree is only consulted once every pending write has landed.
	d.flushLocked()
	n, ok := lookup(d.root, p)
	if !ok || !IsScalar(n) {
		return nil
	}
	e := &cacheEntry{path: p, value: n}
	d.cache[key] = e
	return e
}

// setScalarLocked is the cache fast path. A path seen for the first time is
// checked against the tree so a scalar never shadows a document or array.
func (d *Document) setScalarLocked(path string, n Node) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return &PathError{Path: path, Reason: "cannot assign a scalar to the document root"}
	}
	key := p.String()

	if e, ok := d.cache[key]; ok {
		e.value = n
		e.dirty = true
		e.hasNum, e.hasStr = false, false
		return nil
	}

	d.flushLocked()
	if err := d.checkScalarTarget(p); err != nil {
		slog.Debug("scalar write rejected", "path", key, "error", err)
		return err
	}
	d.cache[key] = &cacheEntry{path: p, value: n, dirty: true}
	return nil
}

// checkScalarTarget rejects writes whose target is a container or whose
// ancestors include a scalar.
func (d *Document) checkScalarTarget(p Path) error {
	var cur Node = d.root
	for i, seg := range p {
		var next Node
		ok := false
		switch c := cur.(type) {
		case Object:
			if seg.IsIndex {
				return &PathError{Path: p.String(), Reason: "index into document"}
			}
			next, ok = c[seg.Key]
		case Array:
			if !seg.IsIndex {
				return &PathError{Path: p.String(), Reason: "key into array"}
			}
			if seg.Index < len(c) {
				next, ok = c[seg.Index], true
			}
		case Null:
			return nil
		default:
			return &PathError{Path: p[:i].String(), Reason: "ancestor is a scalar"}
		}
		if !ok {
			return nil
		}
		cur = next
	}
	switch cur.(type) {
	case Object:
		return &PathError{Path: p.String(), Reason: "target is a document"}
	case Array:
		return &PathError{Path: p.String(), Reason: "target is an array"}
	}
	return nil
}

// setTreeLocked writes a structured value and evicts cache entries at or
// below path.
func (d *Document) setTreeLocked(path string, n Node) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	d.flushLocked()

	if len(p) == 0 {
		obj, ok := n.(Object)
		if !ok {
			return &PathError{Path: path, Reason: "document root must be a document"}
		}
		d.root = obj
		clear(d.cache)
		return nil
	}

	root, err := put(d.root, p, n)
	if err != nil {
		return err
	}
	d.root = root.(Object)
	for key, e := range d.cache {
		if e.path.HasPrefix(p) {
			delete(d.cache, key)
		}
	}
	return nil
}

func (d *Document) flushLocked() {
	for key, e := range d.cache {
		if !e.dirty {
			continue
		}
		root, err := put(d.root, e.path, e.value)
		if err != nil {
			// checkScalarTarget makes this unreachable; drop the entry rather
			// than leave two authorities for one path.
			slog.Error("dropping unflushable cache entry", "path", key, "error", err)
			delete(d.cache, key)
			continue
		}
		d.root = root.(Object)
		e.dirty = false
	}
}
