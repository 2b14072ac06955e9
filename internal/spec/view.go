package spec

import (
	"strconv"
	"strings"
)

// ViewEntry is one mapping line. Mode is "" for an inclusion or one of
// "-", "+" and "&" for exclusion, overlay and ditto mappings.
type ViewEntry struct {
	Mode   string
	Depot  string
	Client string
}

// View is an ordered list of mappings as used by clients and branches.
type View []ViewEntry

// ParseView parses two-column mapping lines. Either side may be quoted and
// the mode prefix may sit inside or outside the quotes.
func ParseView(field string, lines []string) (View, error) {
	view := make(View, 0, len(lines))
	verr := &ValidationError{}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		tokens, err := splitViewLine(line)
		if err != "" {
			verr.Add(InvalidFormat, field, lineMsg(i, err))
			continue
		}
		if len(tokens) != 2 {
			verr.Add(InvalidFormat, field, lineMsg(i,
				"Mapping must have a left and a right side."))
			continue
		}

		mode, depot := splitMode(tokens[0])
		entry := ViewEntry{Mode: mode, Depot: depot, Client: tokens[1]}
		if msg := entry.problem(); msg != "" {
			verr.Add(InvalidFormat, field, lineMsg(i, msg))
			continue
		}
		view = append(view, entry)
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return view, nil
}

func lineMsg(i int, msg string) string {
	return "Line " + strconv.Itoa(i+1) + ": " + msg
}

func splitMode(token string) (string, string) {
	if token != "" && strings.ContainsRune("-+&", rune(token[0])) {
		return token[:1], token[1:]
	}

	return "", token
}

// splitViewLine tokenizes on whitespace honouring double quotes.
func splitViewLine(line string) ([]string, string) {
	var (
		tokens  []string
		cur     strings.Builder
		quoted  bool
		started bool
	)

	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true

		case (r == ' ' || r == '\t') && !quoted:
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}

		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, "Unbalanced quotes."
	}
	if started {
		tokens = append(tokens, cur.String())
	}

	return tokens, ""
}

func (e ViewEntry) problem() string {
	if !strings.HasPrefix(e.Depot, "//") {
		return "Left side must begin with '//'."
	}
	if !strings.HasPrefix(e.Client, "//") {
		return "Right side must begin with '//'."
	}

	return ""
}

// Lines formats the view for a spec form, quoting paths with spaces.
func (v View) Lines() []string {
	lines := make([]string, len(v))
	for i, e := range v {
		lines[i] = quotePath(e.Mode+e.Depot) + " " + quotePath(e.Client)
	}

	return lines
}

// Validate checks every mapping.
func (v View) Validate(field string) error {
	verr := &ValidationError{}
	for i, e := range v {
		if len(e.Mode) > 1 ||
			(e.Mode != "" && !strings.Contains("-+&", e.Mode)) {

			verr.Add(InvalidType, field, lineMsg(i,
				"Unknown mapping mode '"+e.Mode+"'."))
			continue
		}
		if msg := e.problem(); msg != "" {
			verr.Add(InvalidFormat, field, lineMsg(i, msg))
		}
	}

	return verr.OrNil()
}

func quotePath(p string) string {
	if strings.ContainsAny(p, " \t") {
		return `"` + p + `"`
	}

	return p
}
