package rule

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/expr"
)

// Compile error codes (E200-E299)
const (
	ErrNotAnArray    = "E200" // rule field is not an array
	ErrSchema        = "E201" // rule document fails the schema
	ErrGuard         = "E202" // guard does not parse
	ErrValue         = "E203" // value expression has unterminated groups
	ErrNoAssignments = "E204" // rule assigns nothing
)

// CompileError describes why one rule document was skipped.
type CompileError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] rule[%d].%s: %s", e.Code, e.Index, e.Field, e.Message)
}

//go:embed rule.schema.json
var schemaText string

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("rule.schema.json", schemaText)
})

// Schema returns the compiled rule document schema.
func Schema() (*jsonschema.Schema, error) {
	return compiledSchema()
}

var scopeFields = []struct {
	scope  expr.Scope
	prefix string
}{
	{expr.ScopeSelf, "self"},
	{expr.ScopeOther, "other"},
	{expr.ScopeGlobal, "global"},
}

// Compile turns one rule document into an Entry.
func Compile(index int, n doc.Node) (*Entry, error) {
	schema, err := Schema()
	if err != nil {
		return nil, fmt.Errorf("rule schema: %w", err)
	}
	if err := schema.Validate(doc.ToAny(n)); err != nil {
		return nil, &CompileError{Index: index, Field: schemaField(err), Message: schemaMessage(err), Code: ErrSchema}
	}
	obj := n.(doc.Object)

	e := &Entry{
		Index: index,
		Guard: stringField(obj, "logicalArg"),
		Topic: strings.TrimSpace(stringField(obj, "topic")),
		Hash:  hashEntry(obj),
	}
	if err := expr.Check(e.Guard); err != nil {
		return nil, &CompileError{Index: index, Field: "logicalArg", Message: err.Error(), Code: ErrGuard}
	}

	for _, sf := range scopeFields {
		key := stringField(obj, sf.prefix+"Key")
		value := stringField(obj, sf.prefix+"Value")
		op := Op(stringField(obj, sf.prefix+"ChangeType"))
		if op == "" {
			op = OpSet
		}
		if key == "" && !(op == OpCall && value != "") {
			continue
		}
		if err := expr.CheckMarkers(value); err != nil {
			return nil, &CompileError{Index: index, Field: sf.prefix + "Value", Message: err.Error(), Code: ErrValue}
		}
		if value == "" && op != OpCall {
			value = "0"
		}
		e.Assignments = append(e.Assignments, Assignment{Scope: sf.scope, Key: key, Op: op, Value: value})
	}
	if len(e.Assignments) == 0 {
		return nil, &CompileError{Index: index, Field: "selfKey", Message: "rule has no assignments", Code: ErrNoAssignments}
	}
	return e, nil
}

// CompileAll compiles every rule document in an array. Documents that fail
// are reported in errs and left out of the set; the rest still compile.
// A nil or null node compiles to an empty set.
func CompileAll(n doc.Node) (Set, []error) {
	var set Set
	switch arr := n.(type) {
	case nil, doc.Null:
		return set, nil
	case doc.Array:
		var errs []error
		for i, item := range arr {
			e, err := Compile(i, item)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if e.IsLocal() {
				set.Local = append(set.Local, e)
			} else {
				set.Broadcast = append(set.Broadcast, e)
			}
		}
		return set, errs
	default:
		return set, []error{&CompileError{Index: -1, Field: "rules", Message: fmt.Sprintf("expected array, got %s", doc.KindOf(n)), Code: ErrNotAnArray}}
	}
}

// stringField reads a scalar field as text. Numbers and bools are accepted
// so that "selfValue": 5 means the same as "selfValue": "5".
func stringField(obj doc.Object, key string) string {
	n, ok := obj[key]
	if !ok {
		return ""
	}
	s, _ := doc.ToString(n)
	return s
}

func schemaField(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if f := strings.TrimPrefix(leaf.InstanceLocation, "/"); f != "" {
			return f
		}
	}
	return "rule"
}

func schemaMessage(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return leaf.Message
	}
	return err.Error()
}
