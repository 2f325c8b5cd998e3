package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/rule"
)

// Validation error codes (E100-E199)
const (
	ErrRuleField         = "E101" // rules field is not an array
	ErrRuleMalformed     = "E102" // a rule fails to compile
	ErrSubscriptionField = "E103" // subscriptions field is not a list of strings
	ErrPosition          = "E104" // position is not numeric
	ErrEmptyTopic        = "E105" // broadcast topic nobody subscribes to
)

// ValidationError describes one problem in a compiled world.
type ValidationError struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	// Warning marks problems that do not stop a run.
	Warning bool `json:"warning,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Entity, e.Field, e.Message)
}

// Validate checks every entity of w against the field layout f.
// Returns all errors found (does not fail-fast).
func Validate(w *World, f entity.Fields) []ValidationError {
	var errs []ValidationError
	subscribed := make(map[string]bool)
	published := make(map[string]string)

	for _, s := range w.Entities {
		name := s.Template
		if s.Index > 0 {
			name = fmt.Sprintf("%s[%d]", s.Template, s.Index)
		}

		for _, key := range []string{entity.KeyPosX, entity.KeyPosY} {
			if s.Doc.MemberType(key) != doc.KindNull {
				if n, _ := s.Doc.Scalar(key); !isNumeric(n) {
					errs = append(errs, ValidationError{Entity: name, Field: key, Message: "position must be a number", Code: ErrPosition})
				}
			}
		}

		if n, ok := s.Doc.Lookup(f.Subscriptions); ok {
			arr, isArr := n.(doc.Array)
			if !isArr {
				errs = append(errs, ValidationError{Entity: name, Field: f.Subscriptions, Message: "must be a list of topics", Code: ErrSubscriptionField})
			}
			for _, item := range arr {
				topic, isStr := item.(doc.String)
				if !isStr {
					errs = append(errs, ValidationError{Entity: name, Field: f.Subscriptions, Message: "topics must be strings", Code: ErrSubscriptionField})
					continue
				}
				subscribed[strings.TrimSpace(string(topic))] = true
			}
		}

		rules, _ := s.Doc.Lookup(f.Rules)
		set, ruleErrs := rule.CompileAll(rules)
		for _, err := range ruleErrs {
			code := ErrRuleMalformed
			var ce *rule.CompileError
			if errors.As(err, &ce) && ce.Code == rule.ErrNotAnArray {
				code = ErrRuleField
			}
			errs = append(errs, ValidationError{Entity: name, Field: f.Rules, Message: err.Error(), Code: code})
		}
		for _, r := range set.Broadcast {
			if _, seen := published[r.Topic]; !seen {
				published[r.Topic] = name
			}
		}
	}

	topics := make([]string, 0, len(published))
	for topic := range published {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if name := published[topic]; !subscribed[topic] {
			errs = append(errs, ValidationError{
				Entity:  name,
				Field:   f.Rules,
				Message: fmt.Sprintf("no entity subscribes to topic %q", topic),
				Code:    ErrEmptyTopic,
				Warning: true,
			})
		}
	}
	return errs
}

// HasErrors reports whether errs holds anything beyond warnings.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.Warning {
			return true
		}
	}
	return false
}

func isNumeric(n doc.Node) bool {
	switch v := n.(type) {
	case doc.Number:
		return true
	case doc.String:
		_, ok := doc.ToFloat(v)
		return ok
	}
	return false
}
