// Package compiler loads world definitions written in CUE and turns them
// into the global document and the entity documents a run starts from.
//
// A world directory holds one CUE package:
//
//	global: { dt: 0.016 }
//	entity: {
//		ball: {
//			replicas: 3
//			spacing:  [40, 0]
//			posX: 10
//			invokes: [...]
//		}
//	}
//
// replicas and spacing are directives, not document fields: they are
// stripped, and each copy gets an index attribute with spacing multiplied
// by the index added to its position.
package compiler

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
)

// Directive and attribute names used in world definitions.
const (
	FieldGlobal   = "global"
	FieldEntity   = "entity"
	FieldReplicas = "replicas"
	FieldSpacing  = "spacing"
	FieldIndex    = "index"
)

// MaxReplicas bounds the replicas directive.
const MaxReplicas = 100000

// World is a compiled world definition.
type World struct {
	Global   *doc.Document
	Entities []Spawn
	// FileCount is the number of .cue files the world was loaded from.
	FileCount int
}

// Spawn is one entity document to insert, with the template it came from.
type Spawn struct {
	Template string
	Index    int
	Doc      *doc.Document
}

// CompileError is a world definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: field, Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// LoadWorld loads and compiles the CUE package in dir.
func LoadWorld(dir string) (*World, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("world directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("world directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan world directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError("load", inst.Err)
	}
	value := ctx.BuildInstance(inst)

	w, err := CompileWorld(value)
	if err != nil {
		return nil, err
	}
	w.FileCount = len(files)
	return w, nil
}

// CompileString compiles world source text. Used by tests and the eval
// command.
func CompileString(src string) (*World, error) {
	return CompileWorld(cuecontext.New().CompileString(src))
}

// CompileWorld converts a built CUE value into a World. Templates expand
// in label order, replicas in index order.
func CompileWorld(v cue.Value) (*World, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError("cue", err)
	}

	w := &World{Global: doc.New()}

	if g := v.LookupPath(cue.ParsePath(FieldGlobal)); g.Exists() {
		obj, err := toObject(FieldGlobal, g)
		if err != nil {
			return nil, err
		}
		w.Global = doc.FromNode(obj)
	}

	ents := v.LookupPath(cue.ParsePath(FieldEntity))
	if !ents.Exists() {
		return w, nil
	}
	iter, err := ents.Fields()
	if err != nil {
		return nil, formatCUEError(FieldEntity, err)
	}

	var labels []string
	templates := make(map[string]cue.Value)
	for iter.Next() {
		labels = append(labels, iter.Label())
		templates[labels[len(labels)-1]] = iter.Value()
	}
	sort.Strings(labels)

	for _, name := range labels {
		spawns, err := expand(name, templates[name])
		if err != nil {
			return nil, err
		}
		w.Entities = append(w.Entities, spawns...)
	}
	return w, nil
}

// expand turns one entity template into its replicas.
func expand(name string, v cue.Value) ([]Spawn, error) {
	field := FieldEntity + "." + name
	obj, err := toObject(field, v)
	if err != nil {
		return nil, err
	}

	replicas := 1
	if n, ok := obj[FieldReplicas]; ok {
		f, isNum := n.(doc.Number)
		if !isNum || f != doc.Number(math.Trunc(float64(f))) || f < 0 || f > MaxReplicas {
			return nil, &CompileError{
				Field:   field + "." + FieldReplicas,
				Message: fmt.Sprintf("must be an integer in [0, %d]", MaxReplicas),
				Pos:     v.LookupPath(cue.ParsePath(FieldReplicas)).Pos(),
			}
		}
		replicas = int(f)
	}

	var dx, dy float64
	if n, ok := obj[FieldSpacing]; ok {
		arr, isArr := n.(doc.Array)
		if !isArr || len(arr) != 2 {
			return nil, &CompileError{
				Field:   field + "." + FieldSpacing,
				Message: "must be a list of two numbers",
				Pos:     v.LookupPath(cue.ParsePath(FieldSpacing)).Pos(),
			}
		}
		dx, _ = doc.ToFloat(arr[0])
		dy, _ = doc.ToFloat(arr[1])
	}

	delete(obj, FieldReplicas)
	delete(obj, FieldSpacing)
	// IDs are assigned by the arena.
	delete(obj, entity.KeyID)

	spawns := make([]Spawn, 0, replicas)
	for i := 0; i < replicas; i++ {
		d := doc.FromNode(obj)
		if replicas > 1 {
			_ = d.SetFloat(FieldIndex, float64(i))
		}
		if dx != 0 || dy != 0 {
			_ = d.SetFloat(entity.KeyPosX, d.GetFloat(entity.KeyPosX, 0)+dx*float64(i))
			_ = d.SetFloat(entity.KeyPosY, d.GetFloat(entity.KeyPosY, 0)+dy*float64(i))
		}
		spawns = append(spawns, Spawn{Template: name, Index: i, Doc: d})
	}
	return spawns, nil
}

func toObject(field string, v cue.Value) (doc.Object, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	n, err := doc.Decode(raw)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return n.(doc.Object), nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
