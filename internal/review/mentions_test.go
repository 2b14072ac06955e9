package review

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		text string
		want Mentions
	}{
		{"no mentions here", Mentions{}},
		{"@bob please look", Mentions{"bob": false}},
		{"@*carol must sign off", Mentions{"carol": true}},
		{"cc @bob, @*bob.", Mentions{"bob": true}},
		{"mail bob@example.com", Mentions{}},
		{"(@dave) and @eve-", Mentions{"dave": false, "eve": false}},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			require.Equal(t, tc.want, ParseMentions(tc.text))
		})
	}
}

func TestMentionsAdded(t *testing.T) {
	prev := ParseMentions("@bob @carol")
	next := ParseMentions("@bob @*carol @dave")

	require.Equal(t, Mentions{"carol": true, "dave": false},
		next.Added(prev))
	require.Equal(t, []string{"bob", "carol", "dave"}, next.Users())
}

func TestParseKeyword(t *testing.T) {
	tests := []struct {
		desc string
		want Keyword
	}{{
		desc: "Fix the build",
		want: Keyword{Description: "Fix the build"},
	}, {
		desc: "Fix the build #review",
		want: Keyword{Found: true, Description: "Fix the build"},
	}, {
		desc: "Fix the build #Review-42",
		want: Keyword{
			Found: true, ReviewID: 42,
			Description: "Fix the build",
		},
	}, {
		desc: "[review] Fix the build",
		want: Keyword{Found: true, Description: "Fix the build"},
	}, {
		desc: "Fix the build\n[REVIEW-7]",
		want: Keyword{
			Found: true, ReviewID: 7,
			Description: "Fix the build",
		},
	}, {
		desc: "Fix #reviewer handling",
		want: Keyword{Description: "Fix #reviewer handling"},
	}}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.want, ParseKeyword(tc.desc))
		})
	}
}

// TestMentionsNotResurrected removes a mentioned participant and checks
// that only a fresh mention brings them back.
func TestMentionsNotResurrected(t *testing.T) {
	r := newTestReview(1)

	r.setDescription("Please review @bob")
	require.Contains(t, r.Participants, "bob")

	require.True(t, r.RemoveParticipant("bob"))

	r.setDescription("Please review @bob, now with tests")
	require.NotContains(t, r.Participants, "bob")

	r.setDescription("Tests added")
	require.NotContains(t, r.Participants, "bob")

	r.setDescription("Tests added, @*bob to sign off")
	require.True(t, r.Participants["bob"].Required)
}
