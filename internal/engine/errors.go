package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a condition detected while updating an entity.
//
// None of them is fatal to a tick: the engine logs the error and carries
// on with the next rule or entity. The structured fields exist so the
// logs and tests can tell the cases apart.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EntityID is the entity being updated.
	EntityID uint64

	// Rule names the rule involved, e.g. "rule[2]@collision".
	Rule string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMalformedRule indicates a rule document that did not compile.
	ErrCodeMalformedRule RuntimeErrorCode = "MALFORMED_RULE"

	// ErrCodeQuotaExceeded indicates an entity exceeded its firing quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeDispatchFailed indicates a call assignment returned a non-OK code.
	ErrCodeDispatchFailed RuntimeErrorCode = "DISPATCH_FAILED"

	// ErrCodeStructuralMisuse indicates a write that would have replaced a
	// document or array with a scalar.
	ErrCodeStructuralMisuse RuntimeErrorCode = "STRUCTURAL_MISUSE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (entity=%d, rule=%s)", e.Code, e.Message, e.EntityID, e.Rule)
	}
	return fmt.Sprintf("%s: %s (entity=%d)", e.Code, e.Message, e.EntityID)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsMalformedRule reports whether err is a malformed rule error.
func IsMalformedRule(err error) bool {
	return hasCode(err, ErrCodeMalformedRule)
}

// IsQuotaError reports whether err is a quota error. Matches both
// RuntimeError with ErrCodeQuotaExceeded and FiringsExceededError.
func IsQuotaError(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded) || IsFiringsExceededError(err)
}

// IsDispatchError reports whether err is a dispatch failure.
func IsDispatchError(err error) bool {
	return hasCode(err, ErrCodeDispatchFailed)
}

// IsStructuralMisuse reports whether err is a rejected structural write.
func IsStructuralMisuse(err error) bool {
	return hasCode(err, ErrCodeStructuralMisuse)
}

// NewMalformedRuleError wraps a rule compile error.
func NewMalformedRuleError(entityID uint64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMalformedRule,
		Message:  "rule skipped",
		EntityID: entityID,
		Err:      cause,
	}
}

// NewQuotaError wraps a FiringsExceededError.
func NewQuotaError(entityID uint64, rule string, cause *FiringsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeQuotaExceeded,
		Message:  "broadcast stopped for this tick",
		EntityID: entityID,
		Rule:     rule,
		Details: map[string]string{
			"firings": fmt.Sprintf("%d", cause.Firings),
			"limit":   fmt.Sprintf("%d", cause.Limit),
		},
		Err: cause,
	}
}

// NewDispatchError reports a call assignment that did not return OK.
func NewDispatchError(entityID uint64, rule, line, code string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeDispatchFailed,
		Message:  fmt.Sprintf("command %q returned %s", line, code),
		EntityID: entityID,
		Rule:     rule,
		Details:  map[string]string{"command": line, "code": code},
	}
}

// NewStructuralMisuseError wraps a rejected document write.
func NewStructuralMisuseError(entityID uint64, rule, key string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeStructuralMisuse,
		Message:  fmt.Sprintf("write to %q rejected", key),
		EntityID: entityID,
		Rule:     rule,
		Details:  map[string]string{"key": key},
		Err:      cause,
	}
}
