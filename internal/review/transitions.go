package review

import (
	"github.com/roasbeef/p4review/internal/project"
)

// State is a review state.
type State string

const (
	StateNeedsReview   State = "needsReview"
	StateNeedsRevision State = "needsRevision"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
	StateArchived      State = "archived"

	// StateApprovedCommit approves and commits in one step. It is never a
	// stored state.
	StateApprovedCommit State = "approved:commit"
)

// restingStates lists the storable states in presentation order.
var restingStates = []State{
	StateNeedsReview,
	StateNeedsRevision,
	StateApproved,
	StateRejected,
	StateArchived,
}

var stateLabels = map[State]string{
	StateNeedsReview:   "Needs Review",
	StateNeedsRevision: "Needs Revision",
	StateApproved:      "Approve",
	StateRejected:      "Reject",
	StateArchived:      "Archive",
}

// Valid reports whether s is a resting state or the commit pseudo-state.
func (s State) Valid() bool {
	_, ok := stateLabels[s]
	return ok || s == StateApprovedCommit
}

// Resting returns the state stored after applying s.
func (s State) Resting() State {
	if s == StateApprovedCommit {
		return StateApproved
	}

	return s
}

// Transition is one next state offered to a caller.
type Transition struct {
	State State  `json:"state"`
	Label string `json:"label"`
}

// TransitionInput is everything the transition engine looks at.
type TransitionInput struct {
	// Current is the review's state.
	Current State

	// User is the caller and Author the review's author.
	User   string
	Author string

	// Pending is true while the review has uncommitted work.
	Pending bool

	// Projects are the known projects and Affected maps the ids of the
	// ones the review touches to their affected branch ids.
	Projects []project.Project
	Affected map[string][]string

	DisableCommit      bool
	DisableSelfApprove bool
}

// baseTransitions returns every state reachable from current.
func baseTransitions(current State) []Transition {
	out := make([]Transition, 0, len(restingStates))
	for _, s := range restingStates {
		if s == current {
			continue
		}
		out = append(out, Transition{State: s, Label: stateLabels[s]})
	}

	label := "Approve and Commit"
	if current == StateApproved {
		label = "Commit"
	}

	return append(out, Transition{State: StateApprovedCommit, Label: label})
}

// Transitions returns the ordered transitions the caller may apply. An
// unauthorized caller gets an empty list.
func Transitions(in TransitionInput) []Transition {
	out := baseTransitions(in.Current)

	if len(in.Affected) > 0 {
		acc := project.AccessFor(in.Projects, in.Affected, in.User)
		if !acc.Member {
			return nil
		}

		// Plain members of moderated branches may only send the review
		// back and forth between review and revision.
		if acc.Moderated && !acc.Moderator {
			out = filter(out, func(s State) bool {
				return s == StateNeedsReview ||
					s == StateNeedsRevision
			})
		}
	}

	if in.DisableSelfApprove && in.User == in.Author {
		out = filter(out, func(s State) bool {
			return s != StateApproved && s != StateApprovedCommit
		})
	}

	if in.DisableCommit || !in.Pending {
		out = filter(out, func(s State) bool {
			return s != StateApprovedCommit
		})
	}

	return out
}

func filter(ts []Transition, keep func(State) bool) []Transition {
	out := ts[:0]
	for _, t := range ts {
		if keep(t.State) {
			out = append(out, t)
		}
	}

	return out
}

// TransitionMap returns the transitions keyed by state.
func TransitionMap(ts []Transition) map[string]string {
	m := make(map[string]string, len(ts))
	for _, t := range ts {
		m[string(t.State)] = t.Label
	}

	return m
}

// Offers reports whether target is among ts.
func Offers(ts []Transition, target State) bool {
	for _, t := range ts {
		if t.State == target {
			return true
		}
	}

	return false
}
