// Package p4 runs Perforce commands and returns their tagged output as
// records.
package p4

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when the server reports that the requested
	// object does not exist.
	ErrNotFound = errors.New("p4: not found")

	// ErrConflict is returned when the server rejects an operation
	// because of concurrent changes or files needing resolve.
	ErrConflict = errors.New("p4: conflict")
)

// Record is one tagged record as produced by `p4 -ztag`. List fields keep
// their server numbering, so the first View line is stored as "View0".
type Record map[string]string

// Get returns the value of key or the empty string.
func (r Record) Get(key string) string {
	return r[key]
}

// List collects the numbered values key0, key1, ... until the first gap.
func (r Record) List(key string) []string {
	var out []string
	for i := 0; ; i++ {
		v, ok := r[key+strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// SetList replaces the numbered values of key with values.
func (r Record) SetList(key string, values []string) {
	for i := 0; ; i++ {
		k := key + strconv.Itoa(i)
		if _, ok := r[k]; !ok {
			break
		}
		delete(r, k)
	}
	for i, v := range values {
		r[key+strconv.Itoa(i)] = v
	}
}

// Int parses key as an integer, returning 0 when absent or malformed.
func (r Record) Int(key string) int64 {
	n, _ := strconv.ParseInt(r[key], 10, 64)
	return n
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Client executes Perforce commands.
type Client interface {
	// Run executes cmd with tagged output. input, when non-nil, is
	// written to stdin as a spec form.
	Run(ctx context.Context, cmd string, args []string,
		input Record) ([]Record, error)

	// Output executes cmd without tagged output and returns stdout
	// verbatim, for file content and unified diffs.
	Output(ctx context.Context, cmd string, args []string) ([]byte, error)
}

// CommandError carries the server's message for a failed command.
type CommandError struct {
	Cmd     string
	Args    []string
	Message string

	// Kind is ErrNotFound, ErrConflict or nil.
	Kind error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("p4 %s %s: %s", e.Cmd, strings.Join(e.Args, " "),
		e.Message)
}

// Unwrap lets errors.Is match ErrNotFound and ErrConflict.
func (e *CommandError) Unwrap() error {
	return e.Kind
}

var (
	notFoundMarkers = []string{
		"doesn't exist",
		"does not exist",
		"no such",
		"unknown user",
		"not on client",
		"- file(s) not in client view",
		"no file(s) at that changelist",
	}

	conflictMarkers = []string{
		"must resolve",
		"out of date",
		"has been changed",
		"already locked",
		"merges still pending",
		"can't be deleted",
		"use -f to force",
	}
)

// NewCommandError classifies a server message.
func NewCommandError(cmd string, args []string, msg string) *CommandError {
	msg = strings.TrimSpace(msg)
	lower := strings.ToLower(msg)

	e := &CommandError{Cmd: cmd, Args: args, Message: msg}
	switch {
	case containsAny(lower, notFoundMarkers):
		e.Kind = ErrNotFound
	case containsAny(lower, conflictMarkers):
		e.Kind = ErrConflict
	}

	return e
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}

	return false
}
