package spec

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/roasbeef/p4review/internal/p4"
)

// kind describes how an entity type maps onto p4 commands.
type kind struct {
	// form is the singular command, e.g. "client".
	form string

	// list is the plural command, e.g. "clients".
	list string

	// listID is the tagged field holding the id in list output.
	listID string

	// exists returns the list arguments that match exactly id, or nil
	// when `<form> -o` already fails for unknown ids.
	exists func(id string) []string
}

// Entity is implemented by every id-keyed spec type.
type Entity interface {
	// ID returns the spec identifier.
	ID() string

	// Validate checks the entity before it is saved.
	Validate() error

	kind() kind
	fromRecord(r p4.Record) error
	toRecord() p4.Record
	listArgs(opts FetchAllOptions) ([]string, error)
}

// entityPtr lets the generic functions allocate a T and use it through its
// pointer methods.
type entityPtr[T any] interface {
	*T
	Entity
}

// listFilter is implemented by entities whose list command cannot apply
// every option server side.
type listFilter interface {
	keep(opts FetchAllOptions, id string) bool
}

// FetchAllOptions filters list queries. Not every entity supports every
// option; unsupported options produce an InvalidType validation error.
type FetchAllOptions struct {
	Max        int
	User       string
	NameFilter string
	Status     string
	Files      []string
	Client     string
}

// unsupported reports the first set option not in allowed.
func (o FetchAllOptions) unsupported(form string, allowed ...string) error {
	set := map[string]bool{
		"Max":        o.Max > 0,
		"User":       o.User != "",
		"NameFilter": o.NameFilter != "",
		"Status":     o.Status != "",
		"Files":      len(o.Files) > 0,
		"Client":     o.Client != "",
	}
	for _, a := range allowed {
		delete(set, a)
	}

	for _, name := range []string{
		"Max", "User", "NameFilter", "Status", "Files", "Client",
	} {
		if set[name] {
			return NewValidationError(InvalidType, name,
				fmt.Sprintf("Option is not supported when "+
					"fetching %s specs.", form))
		}
	}

	return nil
}

func (o FetchAllOptions) maxArgs() []string {
	if o.Max > 0 {
		return []string{"-m", strconv.Itoa(o.Max)}
	}

	return nil
}

// Fetch loads the entity with the given id.
func Fetch[T any, P entityPtr[T]](ctx context.Context, c p4.Client,
	id string) (P, error) {

	var e P = new(T)
	k := e.kind()

	if k.exists != nil {
		found, err := exists(ctx, c, k, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%s %q: %w", k.form, id,
				p4.ErrNotFound)
		}
	}

	if err := fetchInto(ctx, c, e, id); err != nil {
		return nil, err
	}

	return e, nil
}

func fetchInto(ctx context.Context, c p4.Client, e Entity, id string) error {
	k := e.kind()

	records, err := c.Run(ctx, k.form, []string{"-o", id}, nil)
	if err != nil {
		return fmt.Errorf("fetch %s %q: %w", k.form, id, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s %q: %w", k.form, id, p4.ErrNotFound)
	}

	return e.fromRecord(records[0])
}

// Exists reports whether an entity with id is present on the server.
func Exists[T any, P entityPtr[T]](ctx context.Context, c p4.Client,
	id string) (bool, error) {

	var e P = new(T)
	k := e.kind()
	if k.exists != nil {
		return exists(ctx, c, k, id)
	}

	err := fetchInto(ctx, c, e, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, p4.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func exists(ctx context.Context, c p4.Client, k kind, id string) (bool,
	error) {

	records, err := c.Run(ctx, k.list, k.exists(id), nil)
	if err != nil {
		if errors.Is(err, p4.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check %s %q: %w", k.form, id, err)
	}
	for _, r := range records {
		if r.Get(k.listID) == id {
			return true, nil
		}
	}

	return false, nil
}

// FetchAll lists entities matching opts and loads each one.
func FetchAll[T any, P entityPtr[T]](ctx context.Context, c p4.Client,
	opts FetchAllOptions) ([]P, error) {

	var sample P = new(T)
	k := sample.kind()

	args, err := sample.listArgs(opts)
	if err != nil {
		return nil, err
	}

	records, err := c.Run(ctx, k.list, args, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", k.list, err)
	}

	var (
		out  []P
		seen = make(map[string]bool)
	)
	for _, r := range records {
		id := r.Get(k.listID)
		if id == "" || seen[id] {
			continue
		}
		if f, ok := any(sample).(listFilter); ok && !f.keep(opts, id) {
			continue
		}
		seen[id] = true

		var e P = new(T)
		if err := fetchInto(ctx, c, e, id); err != nil {
			return nil, err
		}
		out = append(out, e)

		if opts.Max > 0 && len(out) >= opts.Max {
			break
		}
	}

	return out, nil
}

// Save validates e and writes it to the server. The returned id is the one
// assigned by the server, which differs from e.ID() for new changes and
// jobs.
func Save[T any, P entityPtr[T]](ctx context.Context, c p4.Client,
	e P) (string, error) {

	if err := e.Validate(); err != nil {
		return "", err
	}

	k := e.kind()
	records, err := c.Run(ctx, k.form, []string{"-i"}, e.toRecord())
	if err != nil {
		return "", fmt.Errorf("save %s %q: %w", k.form, e.ID(), err)
	}

	id := e.ID()
	for _, r := range records {
		if assigned := assignedID(r, k.form); assigned != "" {
			id = assigned
			break
		}
	}

	return id, nil
}

// Delete removes the entity. Some deletions, such as submitted changes or
// clients with opened files, are refused by the server unless forced.
func Delete[T any, P entityPtr[T]](ctx context.Context, c p4.Client,
	id string, force bool) error {

	var e P = new(T)
	k := e.kind()

	args := []string{"-d"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)

	if _, err := c.Run(ctx, k.form, args, nil); err != nil {
		return fmt.Errorf("delete %s %q: %w", k.form, id, err)
	}

	return nil
}

var createdPattern = regexp.MustCompile(
	`^(?:Change|Job) (\S+) (?:created|saved)`,
)

// assignedID extracts a server-assigned id from the output of `change -i`
// or `job -i`.
func assignedID(r p4.Record, form string) string {
	if form != "change" && form != "job" {
		return ""
	}
	if v := r.Get(form); v != "" {
		return v
	}
	for _, key := range r.Keys() {
		if m := createdPattern.FindStringSubmatch(r[key]); m != nil {
			return m[1]
		}
	}

	return ""
}
