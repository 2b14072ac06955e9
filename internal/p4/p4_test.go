package p4

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const describeOutput = `... change 12
... user alice
... client alice-ws
... time 1700000000
... desc Fix the frobnicator

Longer explanation.
#review

... status pending
... shelved 
... depotFile0 //depot/main/a.c
... action0 edit
... type0 text
... rev0 3
... depotFile1 //depot/main/b.c
... action1 add
... type1 text
... rev1 1

`

func TestParseTaggedDescribe(t *testing.T) {
	records, err := ParseTagged(strings.NewReader(describeOutput))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	require.Equal(t, "12", r.Get("change"))
	require.Equal(t, int64(12), r.Int("change"))
	require.Equal(t,
		"Fix the frobnicator\n\nLonger explanation.\n#review",
		r.Get("desc"))
	require.Equal(t, "pending", r.Get("status"))
	require.Equal(t, []string{"//depot/main/a.c", "//depot/main/b.c"},
		r.List("depotFile"))
	require.Equal(t, []string{"edit", "add"}, r.List("action"))
}

func TestParseTaggedMultipleRecords(t *testing.T) {
	out := `... user alice
... Email alice@example.com

... user bob
... Email bob@example.com

`
	records, err := ParseTagged(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "alice", records[0].Get("user"))
	require.Equal(t, "bob@example.com", records[1].Get("Email"))
}

func TestParseTaggedEmpty(t *testing.T) {
	records, err := ParseTagged(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRecordLists(t *testing.T) {
	r := Record{"View0": "a", "View1": "b", "View3": "orphan"}
	require.Equal(t, []string{"a", "b"}, r.List("View"))

	r.SetList("View", []string{"x"})
	require.Equal(t, []string{"x"}, r.List("View"))
	require.NotContains(t, r, "View1")
	require.Nil(t, r.List("Missing"))
}

func TestFormatForm(t *testing.T) {
	form := FormatForm(Record{
		"Client":      "ws",
		"Description": "line one\nline two",
		"View0":       "//depot/... //ws/...",
		"View1":       "-//depot/secret/... //ws/secret/...",
	})

	require.Equal(t, "Client:\tws\n\n"+
		"Description:\n\tline one\n\tline two\n\n"+
		"View:\n\t//depot/... //ws/...\n"+
		"\t-//depot/secret/... //ws/secret/...\n\n", form)
}

func TestCommandErrorClassification(t *testing.T) {
	tests := []struct {
		msg  string
		kind error
	}{
		{"Change 99 unknown - no such changelist.", ErrNotFound},
		{"//depot/x.c - no such file(s).", ErrNotFound},
		{"Job 'job000001' doesn't exist.", ErrNotFound},
		{"Merges still pending -- use 'resolve' to merge files.",
			ErrConflict},
		{"//depot/a.c - must resolve #2 before submitting", ErrConflict},
		{"Perforce password (P4PASSWD) invalid or unset.", nil},
	}

	for _, tt := range tests {
		err := NewCommandError("change", []string{"-o"}, tt.msg)
		if tt.kind == nil {
			require.False(t, errors.Is(err, ErrNotFound), tt.msg)
			require.False(t, errors.Is(err, ErrConflict), tt.msg)
			continue
		}
		require.ErrorIs(t, err, tt.kind, tt.msg)
	}
}

func TestCommandClientRun(t *testing.T) {
	c := NewCommandClient(Config{
		Port: "perforce:1666", User: "alice", Client: "ws",
	}, nil)

	var (
		gotName  string
		gotArgs  []string
		gotStdin string
	)
	c.run = func(_ context.Context, name string, args []string,
		stdin []byte) ([]byte, []byte, error) {

		gotName, gotArgs, gotStdin = name, args, string(stdin)
		return []byte("... Change 5 created.\n"), nil, nil
	}

	records, err := c.Run(context.Background(), "change", []string{"-i"},
		Record{"Change": "new"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.Equal(t, "p4", gotName)
	require.Equal(t, []string{
		"-ztag", "-p", "perforce:1666", "-u", "alice", "-c", "ws",
		"change", "-i",
	}, gotArgs)
	require.Equal(t, "Change:\tnew\n\n", gotStdin)
}

func TestCommandClientStderr(t *testing.T) {
	c := NewCommandClient(Config{}, nil)
	c.run = func(context.Context, string, []string,
		[]byte) ([]byte, []byte, error) {

		return nil, []byte("Label 'nope' doesn't exist.\n"),
			errors.New("exit status 1")
	}

	_, err := c.Run(context.Background(), "label", []string{"-o", "nope"},
		nil)
	require.ErrorIs(t, err, ErrNotFound)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "label", cmdErr.Cmd)
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	m.On("users", nil, Record{"User": "alice"})
	m.OnError("user", []string{"-o", "zed"}, ErrNotFound)

	ctx := context.Background()
	recs, err := m.Run(ctx, "users", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "alice", recs[0].Get("User"))

	// Callers mutating results must not affect the script.
	recs[0]["User"] = "mallory"
	recs, err = m.Run(ctx, "users", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "alice", recs[0].Get("User"))

	_, err = m.Run(ctx, "user", []string{"-o", "zed"}, nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Run(ctx, "depots", nil, nil)
	require.ErrorIs(t, err, ErrNotFound)

	m.Handler = func(call Call) ([]Record, error) {
		return []Record{{"cmd": call.Key()}}, nil
	}
	recs, err = m.Run(ctx, "depots", []string{"-t", "local"}, nil)
	require.NoError(t, err)
	require.Equal(t, "depots -t local", recs[0].Get("cmd"))

	require.Len(t, m.Calls(), 5)
}

func TestCommandClientOutputUntagged(t *testing.T) {
	c := NewCommandClient(Config{Port: "p4:1666"}, nil)

	var gotArgs []string
	c.run = func(_ context.Context, _ string, args []string,
		_ []byte) ([]byte, []byte, error) {

		gotArgs = args
		return []byte("raw content\n"), nil, nil
	}

	out, err := c.Output(context.Background(), "print",
		[]string{"-q", "//depot/a.c#1"})
	require.NoError(t, err)
	require.Equal(t, "raw content\n", string(out))
	require.Equal(t, []string{"-p", "p4:1666", "print", "-q",
		"//depot/a.c#1"}, gotArgs)
}

func TestMockClientOutput(t *testing.T) {
	m := NewMockClient()
	m.OnOutput("print", []string{"-q", "//depot/a.c@=5"}, []byte("hi"))

	out, err := m.Output(context.Background(), "print",
		[]string{"-q", "//depot/a.c@=5"})
	require.NoError(t, err)
	require.Equal(t, "hi", string(out))

	_, err = m.Output(context.Background(), "print", []string{"x"})
	require.ErrorIs(t, err, ErrNotFound)
}
