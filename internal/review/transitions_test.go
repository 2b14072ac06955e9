package review

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roasbeef/p4review/internal/project"
)

func states(ts []Transition) []State {
	out := make([]State, len(ts))
	for i, t := range ts {
		out[i] = t.State
	}

	return out
}

var moderatedProjects = []project.Project{{
	ID:      "swarm",
	Members: []string{"member"},
	Branches: []project.Branch{
		{ID: "main", Paths: []string{"//depot/main/..."},
			Moderators: []string{"mod"}},
		{ID: "dev", Paths: []string{"//depot/dev/..."}},
	},
}}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name string
		in   TransitionInput
		want []State
	}{{
		name: "base table from needsReview",
		in: TransitionInput{
			Current: StateNeedsReview, User: "a", Author: "a",
			Pending: true,
		},
		want: []State{
			StateNeedsRevision, StateApproved, StateRejected,
			StateArchived, StateApprovedCommit,
		},
	}, {
		name: "self approve disabled hides approval from author",
		in: TransitionInput{
			Current: StateNeedsReview, User: "a", Author: "a",
			Pending: true, DisableSelfApprove: true,
		},
		want: []State{
			StateNeedsRevision, StateRejected, StateArchived,
		},
	}, {
		name: "self approve disabled leaves others alone",
		in: TransitionInput{
			Current: StateNeedsReview, User: "b", Author: "a",
			Pending: true, DisableSelfApprove: true,
		},
		want: []State{
			StateNeedsRevision, StateApproved, StateRejected,
			StateArchived, StateApprovedCommit,
		},
	}, {
		name: "commit disabled",
		in: TransitionInput{
			Current: StateApproved, User: "b", Author: "a",
			Pending: true, DisableCommit: true,
		},
		want: []State{
			StateNeedsReview, StateNeedsRevision, StateRejected,
			StateArchived,
		},
	}, {
		name: "nothing to commit once committed",
		in: TransitionInput{
			Current: StateNeedsReview, User: "b", Author: "a",
		},
		want: []State{
			StateNeedsRevision, StateApproved, StateRejected,
			StateArchived,
		},
	}, {
		name: "non member of affected project",
		in: TransitionInput{
			Current: StateNeedsReview, User: "stranger",
			Author: "a", Pending: true,
			Projects: moderatedProjects,
			Affected: map[string][]string{"swarm": {"dev"}},
		},
		want: nil,
	}, {
		name: "member of unmoderated branch",
		in: TransitionInput{
			Current: StateNeedsReview, User: "member",
			Author: "a", Pending: true,
			Projects: moderatedProjects,
			Affected: map[string][]string{"swarm": {"dev"}},
		},
		want: []State{
			StateNeedsRevision, StateApproved, StateRejected,
			StateArchived, StateApprovedCommit,
		},
	}, {
		name: "member of moderated branch",
		in: TransitionInput{
			Current: StateNeedsReview, User: "member",
			Author: "a", Pending: true,
			Projects: moderatedProjects,
			Affected: map[string][]string{"swarm": {"main"}},
		},
		want: []State{StateNeedsRevision},
	}, {
		name: "moderator who is not a member",
		in: TransitionInput{
			Current: StateNeedsRevision, User: "mod",
			Author: "a", Pending: true,
			Projects: moderatedProjects,
			Affected: map[string][]string{"swarm": {"main"}},
		},
		want: []State{
			StateNeedsReview, StateApproved, StateRejected,
			StateArchived, StateApprovedCommit,
		},
	}, {
		name: "moderating author still cannot self approve",
		in: TransitionInput{
			Current: StateNeedsReview, User: "mod",
			Author: "mod", Pending: true,
			Projects:           moderatedProjects,
			Affected:           map[string][]string{"swarm": {"main"}},
			DisableSelfApprove: true,
		},
		want: []State{
			StateNeedsRevision, StateRejected, StateArchived,
		},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Transitions(tc.in)
			if tc.want == nil {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.want, states(got))
		})
	}
}

func TestTransitionLabels(t *testing.T) {
	fromApproved := TransitionMap(Transitions(TransitionInput{
		Current: StateApproved, User: "b", Author: "a", Pending: true,
	}))
	require.Equal(t, "Commit", fromApproved["approved:commit"])
	require.Equal(t, "Needs Review", fromApproved["needsReview"])
	require.NotContains(t, fromApproved, "approved")

	fromReview := TransitionMap(Transitions(TransitionInput{
		Current: StateNeedsReview, User: "b", Author: "a", Pending: true,
	}))
	require.Equal(t, "Approve and Commit", fromReview["approved:commit"])
	require.Equal(t, "Approve", fromReview["approved"])
}

func TestStateValid(t *testing.T) {
	require.True(t, StateApprovedCommit.Valid())
	require.Equal(t, StateApproved, StateApprovedCommit.Resting())
	require.Equal(t, StateRejected, StateRejected.Resting())
	require.False(t, State("merged").Valid())
}

// TestTransitionSymmetry checks that from every resting state every other
// resting state is offered, except approval for a self-approving author
// when that is disabled, and that commit is offered exactly when neither
// flag removes it.
func TestTransitionSymmetry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		current := rapid.SampledFrom(restingStates).Draw(rt, "current")
		user := rapid.SampledFrom([]string{"a", "b"}).Draw(rt, "user")
		disableSelf := rapid.Bool().Draw(rt, "disableSelf")
		disableCommit := rapid.Bool().Draw(rt, "disableCommit")

		ts := Transitions(TransitionInput{
			Current:            current,
			User:               user,
			Author:             "a",
			Pending:            true,
			DisableSelfApprove: disableSelf,
			DisableCommit:      disableCommit,
		})

		selfBlocked := disableSelf && user == "a"
		for _, target := range restingStates {
			want := target != current &&
				!(selfBlocked && target == StateApproved)
			require.Equal(t, want, Offers(ts, target),
				"%s -> %s", current, target)
		}

		require.Equal(t, !disableCommit && !selfBlocked,
			Offers(ts, StateApprovedCommit))
	})
}
