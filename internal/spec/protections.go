package spec

import (
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/p4review/internal/p4"
)

// Protection is one line of the protections table.
type Protection struct {
	Mode      string
	IsGroup   bool
	Name      string
	Host      string
	Path      string
	Exclusion bool
}

var protectionModes = map[string]bool{
	"list": true, "read": true, "open": true, "write": true,
	"review": true, "admin": true, "super": true, "owner": true,
	"=read": true, "=open": true, "=write": true, "=branch": true,
}

// Protections is the server's singleton protections table.
type Protections struct {
	Lines []Protection
}

// ParseProtection parses "mode user|group name host path".
func ParseProtection(line string) (Protection, error) {
	tokens, msg := splitViewLine(line)
	if msg != "" {
		return Protection{}, NewValidationError(InvalidFormat,
			"Protections", msg)
	}
	if len(tokens) != 5 {
		return Protection{}, NewValidationError(InvalidFormat,
			"Protections", "Expected mode, type, name, host and path.")
	}

	p := Protection{
		Mode: tokens[0],
		Name: tokens[2],
		Host: tokens[3],
		Path: tokens[4],
	}
	switch tokens[1] {
	case "user":
	case "group":
		p.IsGroup = true
	default:
		return Protection{}, NewValidationError(InvalidType,
			"Protections", "Type must be 'user' or 'group'.")
	}
	if strings.HasPrefix(p.Path, "-") {
		p.Exclusion = true
		p.Path = p.Path[1:]
	}

	return p, p.validate()
}

func (p Protection) validate() error {
	if !protectionModes[p.Mode] {
		return NewValidationError(InvalidType, "Protections",
			fmt.Sprintf("Unknown mode '%s'.", p.Mode))
	}
	if !strings.HasPrefix(p.Path, "//") {
		return NewValidationError(InvalidFormat, "Protections",
			"Path must begin with '//'.")
	}

	return nil
}

// String formats the line for the protections form.
func (p Protection) String() string {
	typ := "user"
	if p.IsGroup {
		typ = "group"
	}
	path := p.Path
	if p.Exclusion {
		path = "-" + path
	}

	return strings.Join([]string{
		p.Mode, typ, quotePath(p.Name), quotePath(p.Host),
		quotePath(path),
	}, " ")
}

// FetchProtections loads the protections table.
func FetchProtections(ctx context.Context, c p4.Client) (*Protections,
	error) {

	records, err := c.Run(ctx, "protect", []string{"-o"}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch protections: %w", err)
	}

	out := &Protections{}
	if len(records) == 0 {
		return out, nil
	}
	for _, line := range records[0].List("Protections") {
		p, err := ParseProtection(line)
		if err != nil {
			return nil, err
		}
		out.Lines = append(out.Lines, p)
	}

	return out, nil
}

// SaveProtections validates and writes the table.
func SaveProtections(ctx context.Context, c p4.Client,
	p *Protections) error {

	lines := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		if err := l.validate(); err != nil {
			return err
		}
		lines[i] = l.String()
	}

	r := p4.Record{}
	r.SetList("Protections", lines)
	if _, err := c.Run(ctx, "protect", []string{"-i"}, r); err != nil {
		return fmt.Errorf("save protections: %w", err)
	}

	return nil
}
