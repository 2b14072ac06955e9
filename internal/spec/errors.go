// Package spec maps Perforce spec forms (changes, clients, users, ...) onto
// typed structs and provides fetch, list, save and delete over a p4.Client.
package spec

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a validation failure.
type ErrorKind int

const (
	// InvalidFormat means the value is of the right type but malformed.
	InvalidFormat ErrorKind = iota

	// InvalidType means the value is of the wrong type or outside the
	// allowed set.
	InvalidType

	// Required means a mandatory value is missing.
	Required
)

// String returns the kind name used in API responses.
func (k ErrorKind) String() string {
	switch k {
	case InvalidFormat:
		return "InvalidFormat"
	case InvalidType:
		return "InvalidType"
	case Required:
		return "Required"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ValidationError reports one or more invalid fields. Kind is the kind of
// the first failure recorded.
type ValidationError struct {
	Kind     ErrorKind
	Messages map[string]string
}

// NewValidationError creates an error for a single field.
func NewValidationError(kind ErrorKind, field,
	msg string) *ValidationError {

	return &ValidationError{
		Kind:     kind,
		Messages: map[string]string{field: msg},
	}
}

// Add records another failing field. The first message for a field wins.
func (e *ValidationError) Add(kind ErrorKind, field, msg string) {
	if e.Messages == nil {
		e.Messages = make(map[string]string)
		e.Kind = kind
	}
	if _, ok := e.Messages[field]; !ok {
		e.Messages[field] = msg
	}
}

// Merge folds other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for _, field := range sortedKeys(other.Messages) {
		e.Add(other.Kind, field, other.Messages[field])
	}
}

// OrNil returns nil when no field failed, so callers can return it
// directly as an error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Messages) == 0 {
		return nil
	}

	return e
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, field := range sortedKeys(e.Messages) {
		parts = append(parts, field+": "+e.Messages[field])
	}

	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// SubmitConflictError is returned by Submit when files must be resolved
// before the change can be committed.
type SubmitConflictError struct {
	Change int64
	Files  []string
	Err    error
}

// Error implements the error interface.
func (e *SubmitConflictError) Error() string {
	return fmt.Sprintf("change %d has %d file(s) needing resolve: %s",
		e.Change, len(e.Files), strings.Join(e.Files, ", "))
}

// Unwrap exposes the underlying p4 conflict.
func (e *SubmitConflictError) Unwrap() error {
	return e.Err
}
