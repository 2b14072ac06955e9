package spec

import (
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/p4review/internal/p4"
)

// Trigger is one line of the triggers table.
type Trigger struct {
	Name    string
	Type    string
	Path    string
	Command string
}

var triggerTypes = map[string]bool{
	"archive": true, "auth-check": true, "auth-set": true,
	"change-commit": true, "change-content": true, "change-submit": true,
	"change-failed": true, "fix-add": true, "fix-delete": true,
	"form-commit": true, "form-delete": true, "form-in": true,
	"form-out": true, "form-save": true, "shelve-commit": true,
	"shelve-delete": true, "shelve-submit": true, "service-check": true,
}

// Triggers is the server's singleton triggers table.
type Triggers struct {
	Lines []Trigger
}

// ParseTrigger parses `name type path "command"`.
func ParseTrigger(line string) (Trigger, error) {
	tokens, msg := splitViewLine(line)
	if msg != "" {
		return Trigger{}, NewValidationError(InvalidFormat, "Triggers",
			msg)
	}
	if len(tokens) != 4 {
		return Trigger{}, NewValidationError(InvalidFormat, "Triggers",
			"Expected name, type, path and command.")
	}

	t := Trigger{
		Name:    tokens[0],
		Type:    tokens[1],
		Path:    tokens[2],
		Command: tokens[3],
	}

	return t, t.validate()
}

func (t Trigger) validate() error {
	if msg := idProblem(t.Name); msg != "" {
		return NewValidationError(InvalidFormat, "Triggers", msg)
	}
	if !triggerTypes[t.Type] {
		return NewValidationError(InvalidType, "Triggers",
			fmt.Sprintf("Unknown trigger type '%s'.", t.Type))
	}
	if t.Command == "" {
		return NewValidationError(Required, "Triggers",
			"Trigger command is required.")
	}

	return nil
}

// String formats the line for the triggers form.
func (t Trigger) String() string {
	return strings.Join([]string{
		t.Name, t.Type, quotePath(t.Path), `"` + t.Command + `"`,
	}, " ")
}

// FetchTriggers loads the triggers table.
func FetchTriggers(ctx context.Context, c p4.Client) (*Triggers, error) {
	records, err := c.Run(ctx, "triggers", []string{"-o"}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch triggers: %w", err)
	}

	out := &Triggers{}
	if len(records) == 0 {
		return out, nil
	}
	for _, line := range records[0].List("Triggers") {
		t, err := ParseTrigger(line)
		if err != nil {
			return nil, err
		}
		out.Lines = append(out.Lines, t)
	}

	return out, nil
}

// SaveTriggers validates and writes the table.
func SaveTriggers(ctx context.Context, c p4.Client, t *Triggers) error {
	lines := make([]string, len(t.Lines))
	for i, l := range t.Lines {
		if err := l.validate(); err != nil {
			return err
		}
		lines[i] = l.String()
	}

	r := p4.Record{}
	r.SetList("Triggers", lines)
	if _, err := c.Run(ctx, "triggers", []string{"-i"}, r); err != nil {
		return fmt.Errorf("save triggers: %w", err)
	}

	return nil
}
