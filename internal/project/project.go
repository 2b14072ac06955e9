// Package project models review projects and the branches they watch, and
// works out which projects a set of depot files touches.
package project

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Branch is a named set of depot paths within a project. Moderators, when
// present, are the only users allowed to approve or reject reviews that
// touch the branch.
type Branch struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Paths      []string `json:"paths"`
	Moderators []string `json:"moderators,omitempty"`
}

// Project groups members and branches.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	Branches    []Branch `json:"branches"`
}

// IsMember reports whether user is listed as a project member.
func (p *Project) IsMember(user string) bool {
	return contains(p.Members, user)
}

// Branch returns the branch with the given id.
func (p *Project) Branch(id string) (Branch, bool) {
	for _, b := range p.Branches {
		if b.ID == id {
			return b, true
		}
	}

	return Branch{}, false
}

// Matches reports whether depotFile falls under any of the branch paths.
func (b *Branch) Matches(depotFile string) bool {
	for _, p := range b.Paths {
		if MatchPath(p, depotFile) {
			return true
		}
	}

	return false
}

// MatchPath matches a depot file against a Perforce path pattern. "..."
// matches across directories and "*" within one. A leading "-" marks an
// exclusion and never matches.
func MatchPath(pattern, depotFile string) bool {
	if strings.HasPrefix(pattern, "-") {
		return false
	}

	ok, err := doublestar.Match(translate(pattern), depotFile)
	return err == nil && ok
}

// translate converts Perforce wildcards to doublestar syntax, escaping the
// characters doublestar treats specially.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case strings.HasPrefix(pattern[i:], "..."):
			b.WriteString("**")
			i += 2

		case c == '[' || c == ']' || c == '{' || c == '}' ||
			c == '\\' || c == '?':

			b.WriteByte('\\')
			b.WriteByte(c)

		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Affected maps each project touched by depotFiles to the sorted ids of
// the touched branches. Exclusion paths ("-//...") on a branch remove
// files from that branch.
func Affected(projects []Project, depotFiles []string) map[string][]string {
	out := make(map[string][]string)

	for _, p := range projects {
		for _, b := range p.Branches {
			if touches(b, depotFiles) {
				out[p.ID] = append(out[p.ID], b.ID)
			}
		}
		sort.Strings(out[p.ID])
		if len(out[p.ID]) == 0 {
			delete(out, p.ID)
		}
	}

	return out
}

func touches(b Branch, depotFiles []string) bool {
	for _, f := range depotFiles {
		if !b.Matches(f) {
			continue
		}

		excluded := false
		for _, p := range b.Paths {
			if strings.HasPrefix(p, "-") && MatchPath(p[1:], f) {
				excluded = true
				break
			}
		}
		if !excluded {
			return true
		}
	}

	return false
}

// Access summarises a user's standing on the projects a review affects.
type Access struct {
	// Member is true for members of any affected project and for
	// moderators of any affected branch.
	Member bool

	// Moderated is true when any affected branch declares moderators.
	Moderated bool

	// Moderator is true when the user moderates an affected branch.
	Moderator bool
}

// AccessFor computes the access of user given the review's affected
// projects and branches.
func AccessFor(projects []Project, affected map[string][]string,
	user string) Access {

	var acc Access
	for _, p := range projects {
		branchIDs, ok := affected[p.ID]
		if !ok {
			continue
		}
		if p.IsMember(user) {
			acc.Member = true
		}

		for _, id := range branchIDs {
			b, ok := p.Branch(id)
			if !ok || len(b.Moderators) == 0 {
				continue
			}
			acc.Moderated = true
			if contains(b.Moderators, user) {
				acc.Moderator = true
				acc.Member = true
			}
		}
	}

	return acc
}

// Moderators returns the sorted, de-duplicated moderators of the affected
// branches.
func Moderators(projects []Project, affected map[string][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range projects {
		for _, id := range affected[p.ID] {
			b, ok := p.Branch(id)
			if !ok {
				continue
			}
			for _, m := range b.Moderators {
				if !seen[m] {
					seen[m] = true
					out = append(out, m)
				}
			}
		}
	}
	sort.Strings(out)

	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}

	return false
}
