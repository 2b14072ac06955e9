package spec

import (
	"github.com/roasbeef/p4review/internal/p4"
)

// Branch is a branch mapping spec; both view sides are depot paths.
type Branch struct {
	Branch      string `p4:"Branch" validate:"required,p4id"`
	Owner       string `p4:"Owner"`
	Update      string `p4:"Update"`
	Access      string `p4:"Access"`
	Description string `p4:"Description"`
	Options     string `p4:"Options" validate:"omitempty,oneof=locked unlocked"`
	View        View   `p4:"View"`
}

// ID implements Entity.
func (b *Branch) ID() string { return b.Branch }

// Validate implements Entity.
func (b *Branch) Validate() error {
	verr := validateStruct(b)
	if verr == nil {
		verr = &ValidationError{}
	}
	if err := b.View.Validate("View"); err != nil {
		verr.Merge(err.(*ValidationError))
	}

	return verr.OrNil()
}

func (b *Branch) kind() kind {
	return kind{
		form:   "branch",
		list:   "branches",
		listID: "branch",
		exists: func(id string) []string {
			return []string{"-e", id, "-m", "1"}
		},
	}
}

func (b *Branch) fromRecord(r p4.Record) error {
	view, err := ParseView("View", r.List("View"))
	if err != nil {
		return err
	}

	*b = Branch{
		Branch:      r.Get("Branch"),
		Owner:       r.Get("Owner"),
		Update:      r.Get("Update"),
		Access:      r.Get("Access"),
		Description: r.Get("Description"),
		Options:     r.Get("Options"),
		View:        view,
	}

	return nil
}

func (b *Branch) toRecord() p4.Record {
	r := p4.Record{
		"Branch":      b.Branch,
		"Owner":       b.Owner,
		"Description": b.Description,
	}
	setIf(r, "Options", b.Options)
	r.SetList("View", b.View.Lines())

	return r
}

func (b *Branch) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("branch", "Max", "User", "NameFilter")
	if err != nil {
		return nil, err
	}

	args := opts.maxArgs()
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.NameFilter != "" {
		args = append(args, "-e", opts.NameFilter)
	}

	return args, nil
}
