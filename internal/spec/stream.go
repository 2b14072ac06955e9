package spec

import (
	"strings"

	"github.com/roasbeef/p4review/internal/p4"
)

// Stream is a stream spec. Its id is a depot path such as //streams/main.
type Stream struct {
	Stream      string   `p4:"Stream" validate:"required"`
	Owner       string   `p4:"Owner"`
	Name        string   `p4:"Name"`
	Parent      string   `p4:"Parent"`
	Type        string   `p4:"Type" validate:"required,oneof=mainline development release virtual task"`
	Description string   `p4:"Description"`
	Options     string   `p4:"Options"`
	Paths       []string `p4:"Paths"`
	Update      string   `p4:"Update"`
	Access      string   `p4:"Access"`
}

// ID implements Entity.
func (s *Stream) ID() string { return s.Stream }

// Validate implements Entity.
func (s *Stream) Validate() error {
	verr := validateStruct(s)
	if verr == nil {
		verr = &ValidationError{}
	}

	if s.Stream != "" {
		if msg := streamIDProblem(s.Stream); msg != "" {
			verr.Add(InvalidFormat, "Stream", msg)
		}
	}

	switch {
	case s.Type == "mainline" && s.Parent != "" && s.Parent != "none":
		verr.Add(InvalidFormat, "Parent",
			"Mainline streams cannot have a parent.")

	case s.Type != "" && s.Type != "mainline" &&
		(s.Parent == "" || s.Parent == "none"):

		verr.Add(Required, "Parent",
			"Only mainline streams may omit a parent.")
	}

	return verr.OrNil()
}

// streamIDProblem checks for the //depot/name form.
func streamIDProblem(id string) string {
	if !strings.HasPrefix(id, "//") {
		return "Stream must begin with '//'."
	}
	parts := strings.Split(strings.TrimPrefix(id, "//"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[len(parts)-1] == "" {
		return "Stream must be in the form '//depot/name'."
	}
	for _, p := range parts {
		if msg := idProblem(p); msg != "" {
			return msg
		}
	}

	return ""
}

func (s *Stream) kind() kind {
	return kind{
		form:   "stream",
		list:   "streams",
		listID: "Stream",
		exists: func(id string) []string {
			return []string{id}
		},
	}
}

func (s *Stream) fromRecord(r p4.Record) error {
	*s = Stream{
		Stream:      r.Get("Stream"),
		Owner:       r.Get("Owner"),
		Name:        r.Get("Name"),
		Parent:      r.Get("Parent"),
		Type:        r.Get("Type"),
		Description: r.Get("Description"),
		Options:     r.Get("Options"),
		Paths:       r.List("Paths"),
		Update:      r.Get("Update"),
		Access:      r.Get("Access"),
	}

	return nil
}

func (s *Stream) toRecord() p4.Record {
	r := p4.Record{
		"Stream":      s.Stream,
		"Owner":       s.Owner,
		"Name":        s.Name,
		"Type":        s.Type,
		"Description": s.Description,
	}
	parent := s.Parent
	if parent == "" {
		parent = "none"
	}
	r["Parent"] = parent
	setIf(r, "Options", s.Options)
	r.SetList("Paths", s.Paths)

	return r
}

func (s *Stream) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported("stream", "Max", "NameFilter", "Files")
	if err != nil {
		return nil, err
	}

	args := opts.maxArgs()
	if opts.NameFilter != "" {
		args = append(args, "-F", "Name="+opts.NameFilter)
	}
	args = append(args, opts.Files...)

	return args, nil
}
