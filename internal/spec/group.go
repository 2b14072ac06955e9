package spec

import (
	"path"

	"github.com/roasbeef/p4review/internal/p4"
)

// Group is a user group spec.
type Group struct {
	Group           string   `p4:"Group" validate:"required,p4id"`
	MaxResults      string   `p4:"MaxResults"`
	MaxScanRows     string   `p4:"MaxScanRows"`
	MaxLockTime     string   `p4:"MaxLockTime"`
	Timeout         string   `p4:"Timeout"`
	PasswordTimeout string   `p4:"PasswordTimeout"`
	Subgroups       []string `p4:"Subgroups" validate:"dive,p4id"`
	Owners          []string `p4:"Owners" validate:"dive,p4id"`
	Users           []string `p4:"Users" validate:"dive,p4id"`
}

// ID implements Entity.
func (g *Group) ID() string { return g.Group }

// Validate implements Entity.
func (g *Group) Validate() error {
	verr := validateStruct(g)
	if verr == nil {
		verr = &ValidationError{}
	}
	if len(g.Users)+len(g.Subgroups)+len(g.Owners) == 0 {
		verr.Add(Required, "Users",
			"A group needs at least one user, owner or subgroup.")
	}

	return verr.OrNil()
}

// HasUser reports whether user is a direct member of the group.
func (g *Group) HasUser(user string) bool {
	for _, u := range g.Users {
		if u == user {
			return true
		}
	}

	return false
}

func (g *Group) kind() kind {
	// `groups` cannot filter by name, so existence is checked by
	// scanning the full list.
	return kind{
		form:   "group",
		list:   "groups",
		listID: "group",
		exists: func(string) []string {
			return nil
		},
	}
}

func (g *Group) fromRecord(r p4.Record) error {
	*g = Group{
		Group:           r.Get("Group"),
		MaxResults:      r.Get("MaxResults"),
		MaxScanRows:     r.Get("MaxScanRows"),
		MaxLockTime:     r.Get("MaxLockTime"),
		Timeout:         r.Get("Timeout"),
		PasswordTimeout: r.Get("PasswordTimeout"),
		Subgroups:       r.List("Subgroups"),
		Owners:          r.List("Owners"),
		Users:           r.List("Users"),
	}

	return nil
}

func (g *Group) toRecord() p4.Record {
	r := p4.Record{"Group": g.Group}
	setIf(r, "MaxResults", g.MaxResults)
	setIf(r, "MaxScanRows", g.MaxScanRows)
	setIf(r, "MaxLockTime", g.MaxLockTime)
	setIf(r, "Timeout", g.Timeout)
	setIf(r, "PasswordTimeout", g.PasswordTimeout)
	r.SetList("Subgroups", g.Subgroups)
	r.SetList("Owners", g.Owners)
	r.SetList("Users", g.Users)

	return r
}

func (g *Group) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("group", "Max", "User", "NameFilter")
	if err != nil {
		return nil, err
	}
	if opts.NameFilter != "" {
		if _, err := path.Match(opts.NameFilter, ""); err != nil {
			return nil, NewValidationError(InvalidFormat,
				"NameFilter", err.Error())
		}
	}

	args := opts.maxArgs()
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}

	return args, nil
}

func (g *Group) keep(opts FetchAllOptions, id string) bool {
	if opts.NameFilter == "" {
		return true
	}
	ok, _ := path.Match(opts.NameFilter, id)

	return ok
}
