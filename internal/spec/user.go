package spec

import (
	"github.com/roasbeef/p4review/internal/p4"
)

// User is a user spec.
type User struct {
	User     string   `p4:"User" validate:"required,p4id"`
	Type     string   `p4:"Type" validate:"omitempty,oneof=standard operator service"`
	Email    string   `p4:"Email" validate:"required,email"`
	FullName string   `p4:"FullName" validate:"required"`
	JobView  string   `p4:"JobView"`
	Reviews  []string `p4:"Reviews" validate:"dive,depotpath"`
	Update   string   `p4:"Update"`
	Access   string   `p4:"Access"`
}

// ID implements Entity.
func (u *User) ID() string { return u.User }

// Validate implements Entity.
func (u *User) Validate() error {
	return validateStruct(u).OrNil()
}

func (u *User) kind() kind {
	return kind{
		form:   "user",
		list:   "users",
		listID: "User",
		exists: func(id string) []string {
			return []string{id}
		},
	}
}

func (u *User) fromRecord(r p4.Record) error {
	*u = User{
		User:     r.Get("User"),
		Type:     r.Get("Type"),
		Email:    r.Get("Email"),
		FullName: r.Get("FullName"),
		JobView:  r.Get("JobView"),
		Reviews:  r.List("Reviews"),
		Update:   r.Get("Update"),
		Access:   r.Get("Access"),
	}

	return nil
}

func (u *User) toRecord() p4.Record {
	r := p4.Record{
		"User":     u.User,
		"Email":    u.Email,
		"FullName": u.FullName,
	}
	setIf(r, "Type", u.Type)
	setIf(r, "JobView", u.JobView)
	r.SetList("Reviews", u.Reviews)

	return r
}

func (u *User) listArgs(opts FetchAllOptions) ([]string, error) {
	if err := opts.unsupported("user", "Max", "NameFilter"); err != nil {
		return nil, err
	}

	args := opts.maxArgs()
	if opts.NameFilter != "" {
		args = append(args, opts.NameFilter)
	}

	return args, nil
}
