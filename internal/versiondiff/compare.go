// Package versiondiff reconciles the files of two review versions into the
// list of per-file diffs a reviewer is shown.
package versiondiff

import (
	"sort"
	"strconv"

	"github.com/roasbeef/p4review/internal/spec"
)

// Side is the content of one review version: the files of a change, either
// shelved or committed.
type Side struct {
	Change  int64
	Shelved bool
	Files   []spec.File
}

// FileDiff is one file to show. DiffLeft and DiffRight are revision
// specifiers; an empty specifier means that side has no content.
type FileDiff struct {
	DepotFile string `json:"depotFile"`
	Action    string `json:"action"`
	DiffLeft  string `json:"diffLeft"`
	DiffRight string `json:"diffRight"`
}

// Compare reconciles left, the older side, with right. A nil left compares
// right against the depot head. Files whose content is the same on both
// sides are omitted. The result is sorted by depot path.
func Compare(left, right *Side) []FileDiff {
	if right == nil {
		return nil
	}

	leftFiles := make(map[string]spec.File)
	if left != nil {
		for _, f := range left.Files {
			leftFiles[f.DepotFile] = f
		}
	}

	var out []FileDiff
	seen := make(map[string]bool, len(right.Files))
	for _, r := range right.Files {
		seen[r.DepotFile] = true

		l, ok := leftFiles[r.DepotFile]
		if !ok {
			out = append(out, leftAbsent(right, r))
			continue
		}
		if fd, keep := bothPresent(left, l, right, r); keep {
			out = append(out, fd)
		}
	}

	if left != nil {
		for _, l := range left.Files {
			if seen[l.DepotFile] {
				continue
			}
			if fd, keep := rightAbsent(left, l); keep {
				out = append(out, fd)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].DepotFile < out[j].DepotFile
	})

	return out
}

func specOf(s *Side, f spec.File) string {
	return f.Spec(s.Change, s.Shelved)
}

// baseSpec is the revision a side's file was based on: the have revision
// of a shelved file, or the revision before a committed one.
func baseSpec(s *Side, f spec.File) string {
	rev := f.Rev
	if !s.Shelved {
		rev--
	}
	if rev <= 0 {
		return ""
	}

	return f.DepotFile + "#" + strconv.Itoa(rev)
}

func sameContent(l, r spec.File) bool {
	return l.Digest != "" && l.Digest == r.Digest
}

func bothPresent(left *Side, l spec.File, right *Side,
	r spec.File) (FileDiff, bool) {

	la, ra := l.Action.Normalize(), r.Action.Normalize()
	fd := FileDiff{
		DepotFile: r.DepotFile,
		DiffLeft:  specOf(left, l),
		DiffRight: specOf(right, r),
	}

	switch {
	case la == spec.ActionDelete && ra == spec.ActionDelete:
		return FileDiff{}, false

	case la == spec.ActionDelete:
		fd.Action = string(spec.ActionAdd)
		fd.DiffLeft = ""

	case ra == spec.ActionDelete:
		fd.Action = string(spec.ActionDelete)

	case la == spec.ActionEdit && ra == spec.ActionAdd:
		fd.Action = string(spec.ActionEdit)

	default:
		// add/add, add/edit and edit/edit.
		if sameContent(l, r) {
			return FileDiff{}, false
		}
		fd.Action = string(spec.ActionEdit)
	}

	return fd, true
}

// rightAbsent handles a file the newer side no longer touches. Only shelved
// content needs undoing; committed content is already in the depot.
func rightAbsent(left *Side, l spec.File) (FileDiff, bool) {
	if !left.Shelved {
		return FileDiff{}, false
	}

	fd := FileDiff{DepotFile: l.DepotFile}
	switch l.Action.Normalize() {
	case spec.ActionAdd:
		fd.Action = string(spec.ActionDelete)
		fd.DiffLeft = specOf(left, l)

	case spec.ActionEdit:
		fd.Action = string(spec.ActionEdit)
		fd.DiffLeft = specOf(left, l)
		fd.DiffRight = baseSpec(left, l)

	default:
		fd.Action = string(spec.ActionAdd)
		fd.DiffRight = baseSpec(left, l)
	}

	return fd, true
}

// leftAbsent handles a file only the newer side touches.
func leftAbsent(right *Side, r spec.File) FileDiff {
	action := r.Action.Normalize()
	fd := FileDiff{
		DepotFile: r.DepotFile,
		Action:    string(action),
		DiffRight: specOf(right, r),
	}
	if action != spec.ActionAdd {
		fd.DiffLeft = baseSpec(right, r)
	}

	return fd
}
