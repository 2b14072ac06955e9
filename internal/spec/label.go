package spec

import (
	"github.com/roasbeef/p4review/internal/p4"
)

// Label is a label spec. Its view is a list of depot paths.
type Label struct {
	Label       string   `p4:"Label" validate:"required,p4id"`
	Owner       string   `p4:"Owner"`
	Update      string   `p4:"Update"`
	Access      string   `p4:"Access"`
	Description string   `p4:"Description"`
	Options     string   `p4:"Options"`
	Revision    string   `p4:"Revision"`
	View        []string `p4:"View" validate:"dive,depotpath"`
}

// ID implements Entity.
func (l *Label) ID() string { return l.Label }

// Validate implements Entity.
func (l *Label) Validate() error {
	return validateStruct(l).OrNil()
}

func (l *Label) kind() kind {
	return kind{
		form:   "label",
		list:   "labels",
		listID: "label",
		exists: func(id string) []string {
			return []string{"-e", id, "-m", "1"}
		},
	}
}

func (l *Label) fromRecord(r p4.Record) error {
	*l = Label{
		Label:       r.Get("Label"),
		Owner:       r.Get("Owner"),
		Update:      r.Get("Update"),
		Access:      r.Get("Access"),
		Description: r.Get("Description"),
		Options:     r.Get("Options"),
		Revision:    r.Get("Revision"),
		View:        r.List("View"),
	}

	return nil
}

func (l *Label) toRecord() p4.Record {
	r := p4.Record{
		"Label":       l.Label,
		"Owner":       l.Owner,
		"Description": l.Description,
	}
	setIf(r, "Options", l.Options)
	setIf(r, "Revision", l.Revision)
	r.SetList("View", l.View)

	return r
}

func (l *Label) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("label", "Max", "User", "NameFilter", "Files")
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
	args = append(args, opts.Files...)

	return args, nil
}
