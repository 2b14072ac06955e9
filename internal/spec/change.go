package spec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roasbeef/p4review/internal/p4"
)

// ChangeStatus is the lifecycle state of a changelist.
type ChangeStatus string

const (
	ChangeNew       ChangeStatus = "new"
	ChangePending   ChangeStatus = "pending"
	ChangeShelved   ChangeStatus = "shelved"
	ChangeSubmitted ChangeStatus = "submitted"
)

// Change is a changelist spec.
type Change struct {
	Change      string       `p4:"Change" validate:"required"`
	Date        string       `p4:"Date"`
	Client      string       `p4:"Client"`
	User        string       `p4:"User"`
	Status      ChangeStatus `p4:"Status" validate:"omitempty,oneof=new pending shelved submitted"`
	Type        string       `p4:"Type" validate:"omitempty,oneof=public restricted"`
	Description string       `p4:"Description" validate:"required"`
	Jobs        []string     `p4:"Jobs"`

	// Files lists the depot paths opened in a pending change.
	Files []string `p4:"Files" validate:"dive,depotpath"`
}

// NewChange returns a change that the server numbers on save.
func NewChange(client, user, description string) *Change {
	return &Change{
		Change:      string(ChangeNew),
		Client:      client,
		User:        user,
		Status:      ChangeNew,
		Description: description,
	}
}

// ID implements Entity.
func (c *Change) ID() string { return c.Change }

// Number returns the numeric change id, or 0 for a new change.
func (c *Change) Number() int64 {
	n, _ := strconv.ParseInt(c.Change, 10, 64)
	return n
}

// IsSubmitted reports whether the change has been committed.
func (c *Change) IsSubmitted() bool {
	return c.Status == ChangeSubmitted
}

// Validate implements Entity.
func (c *Change) Validate() error {
	verr := validateStruct(c)
	if verr == nil {
		verr = &ValidationError{}
	}
	if c.Change != string(ChangeNew) && c.Number() <= 0 {
		verr.Add(InvalidType, "Change",
			"Change must be 'new' or a positive number.")
	}

	return verr.OrNil()
}

func (c *Change) kind() kind {
	// `change -o` fails for unknown numbers, so no separate existence check is
	// needed.
	return kind{
		form:   "change",
		list:   "changes",
		listID: "change",
	}
}

func (c *Change) fromRecord(r p4.Record) error {
	files := r.List("Files")
	for i, f := range files {
		// Pending change forms annotate files as "//path\t# edit".
		path, _, _ := strings.Cut(f, "\t")
		files[i] = strings.TrimSpace(path)
	}

	*c = Change{
		Change:      r.Get("Change"),
		Date:        r.Get("Date"),
		Client:      r.Get("Client"),
		User:        r.Get("User"),
		Status:      ChangeStatus(r.Get("Status")),
		Type:        r.Get("Type"),
		Description: r.Get("Description"),
		Jobs:        r.List("Jobs"),
		Files:       files,
	}

	return nil
}

func (c *Change) toRecord() p4.Record {
	r := p4.Record{
		"Change":      c.Change,
		"Description": c.Description,
	}
	setIf(r, "Client", c.Client)
	setIf(r, "User", c.User)
	setIf(r, "Status", string(c.Status))
	setIf(r, "Type", c.Type)
	r.SetList("Jobs", c.Jobs)
	r.SetList("Files", c.Files)

	return r
}

func (c *Change) listArgs(opts FetchAllOptions) ([]string, error) {
	err := opts.unsupported(
		"change", "Max", "User", "Status", "Files", "Client",
	)
	if err != nil {
		return nil, err
	}

	args := opts.maxArgs()
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.Status != "" {
		switch ChangeStatus(opts.Status) {
		case ChangePending, ChangeShelved, ChangeSubmitted:
		default:
			return nil, NewValidationError(InvalidType, "Status",
				"Status must be pending, shelved or submitted.")
		}
		args = append(args, "-s", opts.Status)
	}
	if opts.Client != "" {
		args = append(args, "-c", opts.Client)
	}
	args = append(args, opts.Files...)

	return args, nil
}

// FetchChange loads a change by number.
func FetchChange(ctx context.Context, c p4.Client, id int64) (*Change,
	error) {

	return Fetch[Change](ctx, c, strconv.FormatInt(id, 10))
}

// Shelve shelves the opened files of a pending change, replacing any
// previously shelved content.
func Shelve(ctx context.Context, c p4.Client, id int64) error {
	_, err := c.Run(ctx, "shelve", []string{
		"-r", "-c", strconv.FormatInt(id, 10),
	}, nil)
	if err != nil {
		return fmt.Errorf("shelve change %d: %w", id, err)
	}

	return nil
}

// Submit commits a pending change opened in the client workspace and
// returns the submitted change number, which the server may renumber. When
// files must be resolved first the error is a *SubmitConflictError listing
// them.
func Submit(ctx context.Context, c p4.Client, id int64) (int64, error) {
	num := strconv.FormatInt(id, 10)

	records, err := c.Run(ctx, "submit", []string{"-c", num}, nil)
	if err != nil {
		return 0, submitError(ctx, c, id, err, func() ([]string, error) {
			return filesNeedingResolve(ctx, c, num)
		})
	}

	return submittedNumber(records, id), nil
}

// SubmitShelved commits the shelved files of a change straight from the
// shelf with "submit -e". The change may belong to any workspace, which is
// the case for review heads shelved by their authors. On conflict every
// shelved file is reported, since the shelf has to be unshelved and
// resolved in a workspace.
func SubmitShelved(ctx context.Context, c p4.Client, id int64) (int64,
	error) {

	records, err := c.Run(ctx, "submit", []string{
		"-e", strconv.FormatInt(id, 10),
	}, nil)
	if err != nil {
		return 0, submitError(ctx, c, id, err, func() ([]string, error) {
			files, err := ChangeFiles(ctx, c, id, true)
			if err != nil {
				return nil, err
			}

			paths := make([]string, len(files))
			for i, f := range files {
				paths[i] = f.DepotFile
			}

			return paths, nil
		})
	}

	return submittedNumber(records, id), nil
}

func submitError(ctx context.Context, c p4.Client, id int64, err error,
	conflicted func() ([]string, error)) error {

	if !errors.Is(err, p4.ErrConflict) {
		return fmt.Errorf("submit change %d: %w", id, err)
	}

	files, ferr := conflicted()
	if ferr != nil {
		return errors.Join(err, ferr)
	}

	return &SubmitConflictError{Change: id, Files: files, Err: err}
}

func submittedNumber(records []p4.Record, id int64) int64 {
	for _, r := range records {
		if n := r.Int("submittedChange"); n > 0 {
			return n
		}
	}

	return id
}

func filesNeedingResolve(ctx context.Context, c p4.Client,
	change string) ([]string, error) {

	records, err := c.Run(ctx, "resolve", []string{"-n", "-c", change},
		nil)
	if err != nil && !errors.Is(err, p4.ErrNotFound) {
		return nil, fmt.Errorf("list unresolved files: %w", err)
	}

	var files []string
	for _, r := range records {
		f := r.Get("clientFile")
		if f == "" {
			f = r.Get("toFile")
		}
		if f != "" {
			files = append(files, f)
		}
	}

	return files, nil
}

// Revert reverts every file opened in the change.
func Revert(ctx context.Context, c p4.Client, id int64) error {
	_, err := c.Run(ctx, "revert", []string{
		"-c", strconv.FormatInt(id, 10), "//...",
	}, nil)
	if err != nil && !errors.Is(err, p4.ErrNotFound) {
		return fmt.Errorf("revert change %d: %w", id, err)
	}

	return nil
}
