package spec

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/roasbeef/p4review/internal/p4"
)

// FileAction is the action a change applies to a file.
type FileAction string

const (
	ActionAdd       FileAction = "add"
	ActionEdit      FileAction = "edit"
	ActionDelete    FileAction = "delete"
	ActionBranch    FileAction = "branch"
	ActionIntegrate FileAction = "integrate"
	ActionMoveAdd   FileAction = "move/add"
	ActionMoveDel   FileAction = "move/delete"
	ActionPurge     FileAction = "purge"
	ActionArchive   FileAction = "archive"
)

// Normalize folds the server's many actions into add, edit or delete.
func (a FileAction) Normalize() FileAction {
	switch a {
	case ActionAdd, ActionBranch, ActionMoveAdd:
		return ActionAdd
	case ActionDelete, ActionMoveDel, ActionPurge, ActionArchive:
		return ActionDelete
	default:
		return ActionEdit
	}
}

// File is one file revision within a change.
type File struct {
	DepotFile string
	Action    FileAction
	Rev       int
	Type      string
	Digest    string
	FileSize  int64
}

// ChangeFiles lists the files of a change. For shelved content the shelf
// is described instead of the opened files. Digests missing from describe
// output are filled in with fstat.
func ChangeFiles(ctx context.Context, c p4.Client, change int64,
	shelved bool) ([]File, error) {

	num := strconv.FormatInt(change, 10)
	args := []string{"-s"}
	if shelved {
		args = append(args, "-S")
	}
	args = append(args, num)

	records, err := c.Run(ctx, "describe", args, nil)
	if err != nil {
		return nil, fmt.Errorf("describe change %d: %w", change, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("describe change %d: %w", change,
			p4.ErrNotFound)
	}

	r := records[0]
	depotFiles := r.List("depotFile")
	actions := r.List("action")
	types := r.List("type")
	revs := r.List("rev")
	digests := r.List("digest")
	sizes := r.List("fileSize")

	files := make([]File, len(depotFiles))
	var missing []string
	for i, df := range depotFiles {
		f := File{
			DepotFile: df,
			Action:    FileAction(at(actions, i)),
			Type:      at(types, i),
			Digest:    at(digests, i),
		}
		f.Rev, _ = strconv.Atoi(at(revs, i))
		f.FileSize, _ = strconv.ParseInt(at(sizes, i), 10, 64)
		files[i] = f

		if f.Digest == "" && f.Action.Normalize() != ActionDelete {
			missing = append(missing, f.Spec(change, shelved))
		}
	}

	if len(missing) > 0 {
		digests, err := fstatDigests(ctx, c, missing)
		if err != nil {
			return nil, err
		}
		for i := range files {
			if d, ok := digests[files[i].DepotFile]; ok {
				files[i].Digest = d.digest
				files[i].FileSize = d.size
			}
		}
	}

	return files, nil
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}

	return ""
}

// Spec returns the revision specifier of this file as of the change:
// "@=<change>" for shelved content, "#<rev>" for committed content.
func (f File) Spec(change int64, shelved bool) string {
	if shelved {
		return f.DepotFile + "@=" + strconv.FormatInt(change, 10)
	}

	return f.DepotFile + "#" + strconv.Itoa(f.Rev)
}

type fileDigest struct {
	digest string
	size   int64
}

// fstatDigests runs `fstat -Ol` and returns digests keyed by depot path.
func fstatDigests(ctx context.Context, c p4.Client,
	specs []string) (map[string]fileDigest, error) {

	records, err := c.Run(ctx, "fstat", append([]string{"-Ol"}, specs...),
		nil)
	if err != nil {
		return nil, fmt.Errorf("fstat digests: %w", err)
	}

	out := make(map[string]fileDigest, len(records))
	for _, r := range records {
		out[r.Get("depotFile")] = fileDigest{
			digest: r.Get("digest"),
			size:   r.Int("fileSize"),
		}
	}

	return out, nil
}

// FileData returns the content of a file revision and its MD5 digest in
// the upper-case hex form the server reports.
func FileData(ctx context.Context, c p4.Client, fileSpec string) ([]byte,
	string, error) {

	data, err := c.Output(ctx, "print", []string{"-q", fileSpec})
	if err != nil {
		return nil, "", fmt.Errorf("print %s: %w", fileSpec, err)
	}

	sum := md5.Sum(data) //nolint:gosec

	return data, strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// OpenFiles opens paths in a pending change for add, edit or delete.
func OpenFiles(ctx context.Context, c p4.Client, action FileAction,
	change int64, paths ...string) error {

	var cmd string
	switch action {
	case ActionAdd:
		cmd = "add"
	case ActionEdit:
		cmd = "edit"
	case ActionDelete:
		cmd = "delete"
	default:
		return NewValidationError(InvalidType, "action",
			fmt.Sprintf("Cannot open files for %q.", action))
	}
	if len(paths) == 0 {
		return NewValidationError(Required, "paths",
			"At least one path is required.")
	}

	args := []string{"-c", strconv.FormatInt(change, 10)}
	if _, err := c.Run(ctx, cmd, append(args, paths...), nil); err != nil {
		return fmt.Errorf("%s files: %w", cmd, err)
	}

	return nil
}

// Sync brings the workspace to the given file specs, or to head when none
// are given.
func Sync(ctx context.Context, c p4.Client, specs ...string) error {
	if len(specs) == 0 {
		specs = []string{"//..."}
	}
	if _, err := c.Run(ctx, "sync", specs, nil); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	return nil
}
