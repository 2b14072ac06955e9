package p4

import (
	"regexp"
	"sort"
	"strings"
)

var listKey = regexp.MustCompile(`^(.*[^0-9])([0-9]+)$`)

// listFields are form fields whose numbered record keys are written as a
// single indented block.
var listFields = map[string]bool{
	"View":        true,
	"Files":       true,
	"Jobs":        true,
	"Users":       true,
	"Owners":      true,
	"Subgroups":   true,
	"Paths":       true,
	"Remapped":    true,
	"Ignored":     true,
	"Protections": true,
	"Triggers":    true,
	"AltRoots":    true,
	"Reviews":     true,
}

// FormatForm renders a record as the spec text accepted by `p4 <cmd> -i`.
func FormatForm(r Record) string {
	lists := make(map[string][]string)
	var scalars []string

	for _, k := range r.Keys() {
		if m := listKey.FindStringSubmatch(k); m != nil &&
			listFields[m[1]] {

			if _, seen := lists[m[1]]; !seen {
				lists[m[1]] = r.List(m[1])
			}
			continue
		}
		scalars = append(scalars, k)
	}

	var b strings.Builder
	for _, k := range scalars {
		v := r[k]
		if strings.Contains(v, "\n") {
			b.WriteString(k + ":\n")
			for _, line := range strings.Split(v, "\n") {
				b.WriteString("\t" + line + "\n")
			}
		} else {
			b.WriteString(k + ":\t" + v + "\n")
		}
		b.WriteString("\n")
	}

	names := make([]string, 0, len(lists))
	for name := range lists {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(name + ":\n")
		for _, line := range lists[name] {
			b.WriteString("\t" + line + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}
