package spec

import "github.com/roasbeef/p4review/internal/p4"

// Depot is a depot spec.
type Depot struct {
	Depot       string `p4:"Depot" validate:"required,p4id"`
	Owner       string `p4:"Owner"`
	Date        string `p4:"Date"`
	Description string `p4:"Description"`
	Type        string `p4:"Type" validate:"required,oneof=local remote stream spec archive unload tangent graph extension"`
	Address     string `p4:"Address"`
	Suffix      string `p4:"Suffix"`
	StreamDepth string `p4:"StreamDepth"`
	Map         string `p4:"Map" validate:"required"`
}

// ID implements Entity.
func (d *Depot) ID() string { return d.Depot }

// Validate implements Entity.
func (d *Depot) Validate() error {
	return validateStruct(d).OrNil()
}

func (d *Depot) kind() kind {
	return kind{
		form:   "depot",
		list:   "depots",
		listID: "name",
		exists: func(id string) []string {
			return []string{"-e", id}
		},
	}
}

func (d *Depot) fromRecord(r p4.Record) error {
	*d = Depot{
		Depot:       r.Get("Depot"),
		Owner:       r.Get("Owner"),
		Date:        r.Get("Date"),
		Description: r.Get("Description"),
		Type:        r.Get("Type"),
		Address:     r.Get("Address"),
		Suffix:      r.Get("Suffix"),
		StreamDepth: r.Get("StreamDepth"),
		Map:         r.Get("Map"),
	}

	return nil
}

func (d *Depot) toRecord() p4.Record {
	r := p4.Record{
		"Depot":       d.Depot,
		"Owner":       d.Owner,
		"Description": d.Description,
		"Type":        d.Type,
		"Map":         d.Map,
	}
	setIf(r, "Address", d.Address)
	setIf(r, "Suffix", d.Suffix)
	setIf(r, "StreamDepth", d.StreamDepth)

	return r
}

func (d *Depot) listArgs(opts FetchAllOptions) ([]string, error) {
	if err := opts.unsupported("depot", "NameFilter"); err != nil {
		return nil, err
	}
	if opts.NameFilter != "" {
		return []string{"-e", opts.NameFilter}, nil
	}

	return nil, nil
}

func setIf(r p4.Record, key, value string) {
	if value != "" {
		r[key] = value
	}
}
