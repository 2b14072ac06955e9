package versiondiff

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roasbeef/p4review/internal/spec"
)

const path = "//depot/main/f.c"

func file(action spec.FileAction, rev int, digest string) spec.File {
	return spec.File{
		DepotFile: path, Action: action, Rev: rev, Digest: digest,
	}
}

func side(change int64, shelved bool, files ...spec.File) *Side {
	return &Side{Change: change, Shelved: shelved, Files: files}
}

func revSpec(change int64, shelved bool, rev int) string {
	if shelved {
		return fmt.Sprintf("%s@=%d", path, change)
	}

	return fmt.Sprintf("%s#%d", path, rev)
}

var combos = []struct {
	name        string
	left, right bool
}{
	{"shelved-shelved", true, true},
	{"shelved-committed", true, false},
	{"committed-shelved", false, true},
	{"committed-committed", false, false},
}

// TestAddThenEditSameContent covers an add followed by an edit that ends
// with the same content: nothing is shown.
func TestAddThenEditSameContent(t *testing.T) {
	for _, c := range combos {
		t.Run(c.name, func(t *testing.T) {
			left := side(10, c.left, file(spec.ActionAdd, 1, "AAAA"))
			right := side(11, c.right, file(spec.ActionEdit, 2, "AAAA"))

			require.Empty(t, Compare(left, right))
		})
	}
}

// TestAddThenDelete covers an add followed by a delete, always shown as a
// delete between the two revisions.
func TestAddThenDelete(t *testing.T) {
	for _, c := range combos {
		t.Run(c.name, func(t *testing.T) {
			left := side(10, c.left, file(spec.ActionAdd, 1, "AAAA"))
			right := side(11, c.right, file(spec.ActionDelete, 2, ""))

			require.Equal(t, []FileDiff{{
				DepotFile: path,
				Action:    "delete",
				DiffLeft:  revSpec(10, c.left, 1),
				DiffRight: revSpec(11, c.right, 2),
			}}, Compare(left, right))
		})
	}
}

func TestCompareTruthTable(t *testing.T) {
	tests := []struct {
		name        string
		left, right *Side
		want        []FileDiff
	}{{
		name:  "edit then changed edit",
		left:  side(10, true, file(spec.ActionEdit, 3, "AAAA")),
		right: side(11, true, file(spec.ActionEdit, 3, "BBBB")),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "@=10", DiffRight: path + "@=11",
		}},
	}, {
		name:  "edit then add",
		left:  side(10, true, file(spec.ActionEdit, 3, "AAAA")),
		right: side(11, true, file(spec.ActionAdd, 1, "AAAA")),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "@=10", DiffRight: path + "@=11",
		}},
	}, {
		name:  "unknown digests are shown",
		left:  side(10, true, file(spec.ActionAdd, 1, "")),
		right: side(11, true, file(spec.ActionAdd, 1, "")),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "@=10", DiffRight: path + "@=11",
		}},
	}, {
		name:  "delete then add",
		left:  side(10, true, file(spec.ActionDelete, 3, "")),
		right: side(11, false, file(spec.ActionAdd, 5, "CCCC")),
		want: []FileDiff{{
			DepotFile: path, Action: "add",
			DiffRight: path + "#5",
		}},
	}, {
		name:  "delete then delete",
		left:  side(10, true, file(spec.ActionDelete, 3, "")),
		right: side(11, true, file(spec.ActionDelete, 3, "")),
	}, {
		name:  "shelved add dropped later",
		left:  side(10, true, file(spec.ActionAdd, 1, "AAAA")),
		right: side(11, true),
		want: []FileDiff{{
			DepotFile: path, Action: "delete",
			DiffLeft: path + "@=10",
		}},
	}, {
		name:  "shelved edit dropped later",
		left:  side(10, true, file(spec.ActionEdit, 4, "AAAA")),
		right: side(11, true),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "@=10", DiffRight: path + "#4",
		}},
	}, {
		name:  "shelved delete dropped later",
		left:  side(10, true, file(spec.ActionDelete, 4, "")),
		right: side(11, true),
		want: []FileDiff{{
			DepotFile: path, Action: "add",
			DiffRight: path + "#4",
		}},
	}, {
		name:  "committed file untouched later",
		left:  side(10, false, file(spec.ActionEdit, 4, "AAAA")),
		right: side(11, true),
	}, {
		name:  "against head, shelved edit",
		right: side(11, true, file(spec.ActionEdit, 4, "AAAA")),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "#4", DiffRight: path + "@=11",
		}},
	}, {
		name:  "against head, committed delete",
		right: side(11, false, file(spec.ActionDelete, 5, "")),
		want: []FileDiff{{
			DepotFile: path, Action: "delete",
			DiffLeft: path + "#4", DiffRight: path + "#5",
		}},
	}, {
		name:  "against head, committed add",
		right: side(11, false, file(spec.ActionAdd, 1, "AAAA")),
		want: []FileDiff{{
			DepotFile: path, Action: "add",
			DiffRight: path + "#1",
		}},
	}, {
		name: "integrate and branch fold into edit and add",
		left: side(10, true, spec.File{
			DepotFile: path, Action: spec.ActionIntegrate,
			Rev: 2, Digest: "AAAA",
		}),
		right: side(11, true, spec.File{
			DepotFile: path, Action: spec.ActionBranch,
			Rev: 1, Digest: "AAAA",
		}),
		want: []FileDiff{{
			DepotFile: path, Action: "edit",
			DiffLeft: path + "@=10", DiffRight: path + "@=11",
		}},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Compare(tc.left, tc.right))
		})
	}
}

func TestCompareSortsByPath(t *testing.T) {
	right := &Side{Change: 11, Shelved: true, Files: []spec.File{
		{DepotFile: "//depot/z.c", Action: spec.ActionAdd, Rev: 1},
		{DepotFile: "//depot/a.c", Action: spec.ActionAdd, Rev: 1},
	}}
	left := &Side{Change: 10, Shelved: true, Files: []spec.File{
		{DepotFile: "//depot/m.c", Action: spec.ActionAdd, Rev: 1},
	}}

	got := Compare(left, right)
	require.Len(t, got, 3)
	require.Equal(t, "//depot/a.c", got[0].DepotFile)
	require.Equal(t, "//depot/m.c", got[1].DepotFile)
	require.Equal(t, "//depot/z.c", got[2].DepotFile)
}

// TestIdenticalContentDropped checks that add/add, edit/edit and
// delete/delete pairs with the same content never show up.
func TestIdenticalContentDropped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		action := rapid.SampledFrom([]spec.FileAction{
			spec.ActionAdd, spec.ActionEdit, spec.ActionDelete,
		}).Draw(rt, "action")
		digest := rapid.StringMatching(`[0-9A-F]{32}`).Draw(rt, "digest")
		leftShelved := rapid.Bool().Draw(rt, "leftShelved")
		rightShelved := rapid.Bool().Draw(rt, "rightShelved")

		l := file(action, rapid.IntRange(1, 9).Draw(rt, "lrev"), digest)
		r := file(action, rapid.IntRange(1, 9).Draw(rt, "rrev"), digest)

		got := Compare(
			side(10, leftShelved, l), side(11, rightShelved, r),
		)
		require.Empty(t, got)
	})
}
