package spec

import "github.com/roasbeef/p4review/internal/p4"

// Client is a workspace spec.
type Client struct {
	Client        string   `p4:"Client" validate:"required,p4id"`
	Owner         string   `p4:"Owner"`
	Host          string   `p4:"Host"`
	Description   string   `p4:"Description"`
	Root          string   `p4:"Root" validate:"required"`
	AltRoots      []string `p4:"AltRoots"`
	Options       string   `p4:"Options"`
	SubmitOptions string   `p4:"SubmitOptions" validate:"omitempty,oneof=submitunchanged submitunchanged+reopen revertunchanged revertunchanged+reopen leaveunchanged leaveunchanged+reopen"`
	LineEnd       string   `p4:"LineEnd" validate:"omitempty,oneof=local unix mac win share"`
	Stream        string   `p4:"Stream" validate:"omitempty,depotpath"`
	View          View     `p4:"View"`
	Update        string   `p4:"Update"`
	Access        string   `p4:"Access"`
}

// ID implements Entity.
func (c *Client) ID() string { return c.Client }

// Validate implements Entity.
func (c *Client) Validate() error {
	verr := validateStruct(c)
	if verr == nil {
		verr = &ValidationError{}
	}
	if err := c.View.Validate("View"); err != nil {
		verr.Merge(err.(*ValidationError))
	}

	return verr.OrNil()
}

// SetView parses raw mapping lines into the client view.
func (c *Client) SetView(lines []string) error {
	view, err := ParseView("View", lines)
	if err != nil {
		return err
	}
	c.View = view

	return nil
}

func (c *Client) kind() kind {
	return kind{
		form:   "client",
		list:   "clients",
		listID: "client",
		exists: func(id string) []string {
			return []string{"-e", id, "-m", "1"}
		},
	}
}

func (c *Client) fromRecord(r p4.Record) error {
	view, err := ParseView("View", r.List("View"))
	if err != nil {
		return err
	}

	*c = Client{
		Client:        r.Get("Client"),
		Owner:         r.Get("Owner"),
		Host:          r.Get("Host"),
		Description:   r.Get("Description"),
		Root:          r.Get("Root"),
		AltRoots:      r.List("AltRoots"),
		Options:       r.Get("Options"),
		SubmitOptions: r.Get("SubmitOptions"),
		LineEnd:       r.Get("LineEnd"),
		Stream:        r.Get("Stream"),
		View:          view,
		Update:        r.Get("Update"),
		Access:        r.Get("Access"),
	}

	return nil
}

func (c *Client) toRecord() p4.Record {
	r := p4.Record{
		"Client":      c.Client,
		"Owner":       c.Owner,
		"Description": c.Description,
		"Root":        c.Root,
	}
	setIf(r, "Host", c.Host)
	setIf(r, "Options", c.Options)
	setIf(r, "SubmitOptions", c.SubmitOptions)
	setIf(r, "LineEnd", c.LineEnd)
	setIf(r, "Stream", c.Stream)
	r.SetList("AltRoots", c.AltRoots)

	// Stream clients derive their view from the stream.
	if c.Stream == "" {
		r.SetList("View", c.View.Lines())
	}

	return r
}

func (c *Client) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("client", "Max", "User", "NameFilter")
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
