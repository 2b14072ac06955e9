package versiondiff

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/spec"
)

// Engine loads review versions from the server and reconciles them.
type Engine struct {
	p4  p4.Client
	log *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(c p4.Client, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		p4:  c,
		log: log.With("component", "versiondiff"),
	}
}

// LoadSide fetches the files of a review version.
func (e *Engine) LoadSide(ctx context.Context, v review.Version) (*Side,
	error) {

	files, err := spec.ChangeFiles(ctx, e.p4, v.Change, v.Pending)
	if err != nil {
		return nil, err
	}

	return &Side{Change: v.Change, Shelved: v.Pending, Files: files}, nil
}

// Between reconciles versions from and to of r. from 0 compares against
// the depot head and to 0 means the head version.
func (e *Engine) Between(ctx context.Context, r *review.Review, from,
	to int) ([]FileDiff, error) {

	if to == 0 {
		to = r.HeadVersion()
	}

	rightVersion, err := r.Version(to).UnwrapOrErr(
		fmt.Errorf("version %d: %w", to, review.ErrNoVersion),
	)
	if err != nil {
		return nil, err
	}
	right, err := e.LoadSide(ctx, rightVersion)
	if err != nil {
		return nil, err
	}

	if from == 0 {
		return Compare(nil, right), nil
	}

	leftVersion, err := r.Version(from).UnwrapOrErr(
		fmt.Errorf("version %d: %w", from, review.ErrNoVersion),
	)
	if err != nil {
		return nil, err
	}
	left, err := e.LoadSide(ctx, leftVersion)
	if err != nil {
		return nil, err
	}

	e.log.DebugContext(ctx, "Comparing review versions", "review", r.ID,
		"from", from, "to", to)

	return Compare(left, right), nil
}

// Hunk is one hunk of a file diff.
type Hunk struct {
	OrigStart int32  `json:"origStart"`
	OrigLines int32  `json:"origLines"`
	NewStart  int32  `json:"newStart"`
	NewLines  int32  `json:"newLines"`
	Section   string `json:"section,omitempty"`
	Body      string `json:"body"`
}

// FileHunks is the line level diff of one file.
type FileHunks struct {
	DepotFile string `json:"depotFile"`
	Added     int    `json:"added"`
	Deleted   int    `json:"deleted"`
	Hunks     []Hunk `json:"hunks"`
}

// Hunks computes the line diff of fd. Two-sided diffs come from `diff2
// -du`; one-sided ones show the whole file as added or deleted.
func (e *Engine) Hunks(ctx context.Context, fd FileDiff) (*FileHunks,
	error) {

	out := &FileHunks{DepotFile: fd.DepotFile}

	switch {
	case fd.DiffLeft == "" && fd.DiffRight == "":
		return out, nil

	case fd.DiffLeft == "":
		data, _, err := spec.FileData(ctx, e.p4, fd.DiffRight)
		if err != nil {
			return nil, err
		}
		out.Hunks = []Hunk{wholeFile(data, '+')}
		out.Added = int(out.Hunks[0].NewLines)

		return out, nil

	case fd.DiffRight == "":
		data, _, err := spec.FileData(ctx, e.p4, fd.DiffLeft)
		if err != nil {
			return nil, err
		}
		out.Hunks = []Hunk{wholeFile(data, '-')}
		out.Deleted = int(out.Hunks[0].OrigLines)

		return out, nil
	}

	raw, err := e.p4.Output(ctx, "diff2", []string{
		"-du", fd.DiffLeft, fd.DiffRight,
	})
	if err != nil {
		return nil, fmt.Errorf("diff2 %s: %w", fd.DepotFile, err)
	}

	hunks, err := diff.ParseHunks(hunkSection(raw))
	if err != nil {
		return nil, fmt.Errorf("parse diff of %s: %w", fd.DepotFile,
			err)
	}

	for _, h := range hunks {
		added, deleted := countLines(h.Body)
		out.Added += added
		out.Deleted += deleted
		out.Hunks = append(out.Hunks, Hunk{
			OrigStart: h.OrigStartLine,
			OrigLines: h.OrigLines,
			NewStart:  h.NewStartLine,
			NewLines:  h.NewLines,
			Section:   h.Section,
			Body:      string(h.Body),
		})
	}

	return out, nil
}

// hunkSection drops the "==== left - right ====" banner diff2 prints ahead
// of the hunks.
func hunkSection(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("@@ ")); i >= 0 {
		return raw[i:]
	}

	return nil
}

// splitLines breaks data into lines without their terminators. Lines may
// be of any length; a trailing newline does not add an empty line.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}

	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimSuffix(line, []byte("\r"))
	}

	return lines
}

func countLines(body []byte) (added, deleted int) {
	for _, line := range splitLines(body) {
		switch {
		case bytes.HasPrefix(line, []byte("+")):
			added++
		case bytes.HasPrefix(line, []byte("-")):
			deleted++
		}
	}

	return added, deleted
}

func wholeFile(data []byte, prefix byte) Hunk {
	var (
		body  bytes.Buffer
		lines int32
	)
	for _, line := range splitLines(data) {
		body.WriteByte(prefix)
		body.Write(line)
		body.WriteByte('\n')
		lines++
	}

	h := Hunk{Body: body.String()}
	if prefix == '+' {
		h.NewStart, h.NewLines = 1, lines
	} else {
		h.OrigStart, h.OrigLines = 1, lines
	}

	return h
}
