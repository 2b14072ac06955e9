package versiondiff

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/review"
)

func newTestEngine() (*Engine, *p4.MockClient) {
	m := p4.NewMockClient()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewEngine(m, log), m
}

func TestBetween(t *testing.T) {
	e, m := newTestEngine()
	ctx := context.Background()

	m.On("describe", []string{"-s", "-S", "10"}, p4.Record{
		"change":     "10",
		"depotFile0": "//depot/a.c", "action0": "add", "rev0": "1",
		"digest0":    "AAAA",
		"depotFile1": "//depot/b.c", "action1": "edit", "rev1": "3",
		"digest1": "BBBB",
	})
	m.On("describe", []string{"-s", "11"}, p4.Record{
		"change":     "11",
		"depotFile0": "//depot/a.c", "action0": "add", "rev0": "1",
		"digest0":    "AAAA",
		"depotFile1": "//depot/b.c", "action1": "edit", "rev1": "4",
		"digest1": "CCCC",
	})

	r := &review.Review{
		ID: 1,
		Versions: []review.Version{
			{Change: 10, Pending: true},
			{Change: 11, Pending: false},
		},
	}

	got, err := e.Between(ctx, r, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []FileDiff{{
		DepotFile: "//depot/b.c", Action: "edit",
		DiffLeft: "//depot/b.c@=10", DiffRight: "//depot/b.c#4",
	}}, got)

	got, err = e.Between(ctx, r, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []FileDiff{{
		DepotFile: "//depot/a.c", Action: "add",
		DiffRight: "//depot/a.c@=10",
	}, {
		DepotFile: "//depot/b.c", Action: "edit",
		DiffLeft: "//depot/b.c#3", DiffRight: "//depot/b.c@=10",
	}}, got)

	_, err = e.Between(ctx, r, 1, 3)
	require.ErrorIs(t, err, review.ErrNoVersion)

	_, err = e.Between(ctx, r, 5, 2)
	require.ErrorIs(t, err, review.ErrNoVersion)
}

const diff2Output = `==== //depot/b.c#3 (text) - //depot/b.c#4 (text) ==== content
@@ -1,3 +1,4 @@ func main
 line one
-line two
+line 2
+line 2.5
 line three
`

func TestHunks(t *testing.T) {
	e, m := newTestEngine()
	ctx := context.Background()

	m.OnOutput("diff2", []string{"-du", "//depot/b.c#3", "//depot/b.c#4"},
		[]byte(diff2Output))

	fh, err := e.Hunks(ctx, FileDiff{
		DepotFile: "//depot/b.c", Action: "edit",
		DiffLeft: "//depot/b.c#3", DiffRight: "//depot/b.c#4",
	})
	require.NoError(t, err)
	require.Equal(t, 2, fh.Added)
	require.Equal(t, 1, fh.Deleted)
	require.Len(t, fh.Hunks, 1)
	require.Equal(t, int32(1), fh.Hunks[0].OrigStart)
	require.Equal(t, int32(3), fh.Hunks[0].OrigLines)
	require.Equal(t, int32(4), fh.Hunks[0].NewLines)
}

func TestHunksOneSided(t *testing.T) {
	e, m := newTestEngine()
	ctx := context.Background()

	m.OnOutput("print", []string{"-q", "//depot/a.c@=10"},
		[]byte("alpha\nbeta\n"))

	fh, err := e.Hunks(ctx, FileDiff{
		DepotFile: "//depot/a.c", Action: "add",
		DiffRight: "//depot/a.c@=10",
	})
	require.NoError(t, err)
	require.Equal(t, 2, fh.Added)
	require.Zero(t, fh.Deleted)
	require.Equal(t, "+alpha\n+beta\n", fh.Hunks[0].Body)

	m.OnOutput("print", []string{"-q", "//depot/a.c#1"}, []byte("gone\n"))
	fh, err = e.Hunks(ctx, FileDiff{
		DepotFile: "//depot/a.c", Action: "delete",
		DiffLeft: "//depot/a.c#1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, fh.Deleted)
}

func TestHunksLongLines(t *testing.T) {
	e, m := newTestEngine()
	ctx := context.Background()

	long := strings.Repeat("x", 70*1024)

	m.OnOutput("print", []string{"-q", "//depot/min.js@=10"},
		[]byte("head\n"+long+"\ntail\n"))

	fh, err := e.Hunks(ctx, FileDiff{
		DepotFile: "//depot/min.js", Action: "add",
		DiffRight: "//depot/min.js@=10",
	})
	require.NoError(t, err)
	require.Equal(t, 3, fh.Added)
	require.Equal(t, int32(3), fh.Hunks[0].NewLines)
	require.Equal(t, "+head\n+"+long+"\n+tail\n", fh.Hunks[0].Body)

	m.OnOutput("diff2", []string{
		"-du", "//depot/min.js#1", "//depot/min.js#2",
	}, []byte("==== //depot/min.js#1 (text) - //depot/min.js#2 (text) "+
		"==== content\n@@ -1,2 +1,3 @@\n head\n+"+long+"\n-old\n+new\n"))

	fh, err = e.Hunks(ctx, FileDiff{
		DepotFile: "//depot/min.js", Action: "edit",
		DiffLeft: "//depot/min.js#1", DiffRight: "//depot/min.js#2",
	})
	require.NoError(t, err)
	require.Equal(t, 2, fh.Added)
	require.Equal(t, 1, fh.Deleted)
}
