package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/p4review/internal/store"
)

var (
	// ErrUnauthorized is returned when the caller may not perform an
	// action on a review.
	ErrUnauthorized = errors.New("not authorized")

	// ErrBadToken is returned when a test or deploy callback presents a
	// token that does not match the review's current token.
	ErrBadToken = errors.New("invalid review token")

	// ErrNoVersion is returned for a version number the review lacks.
	ErrNoVersion = errors.New("no such version")

	// ErrNoFile is returned when a file is not part of a version.
	ErrNoFile = errors.New("file not in version")
)

// Difference values recorded on a version.
const (
	DifferenceUnknown   = 0
	DifferenceDiffers   = 1
	DifferenceIdentical = 2
)

// VersionFile is a file as captured by a version.
type VersionFile struct {
	DepotFile string `json:"depotFile"`
	Action    string `json:"action"`
	Rev       int    `json:"rev,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

// Version is one shelve or commit event that updated a review.
type Version struct {
	Change     int64         `json:"change"`
	User       string        `json:"user"`
	Time       time.Time     `json:"time"`
	Pending    bool          `json:"pending"`
	Difference int           `json:"difference"`
	Files      []VersionFile `json:"files,omitempty"`
}

// File returns the version's capture of depotFile.
func (v Version) File(depotFile string) fn.Option[VersionFile] {
	for _, f := range v.Files {
		if f.DepotFile == depotFile {
			return fn.Some(f)
		}
	}

	return fn.None[VersionFile]()
}

// difference compares two captures. Files are identical when the same paths
// carry the same action and the same known digest.
func difference(prev, next []VersionFile) int {
	if prev == nil {
		return DifferenceUnknown
	}
	if len(prev) != len(next) {
		return DifferenceDiffers
	}

	byPath := make(map[string]VersionFile, len(prev))
	for _, f := range prev {
		byPath[f.DepotFile] = f
	}
	for _, f := range next {
		old, ok := byPath[f.DepotFile]
		if !ok || old.Action != f.Action {
			return DifferenceDiffers
		}
		if f.Action == "delete" {
			continue
		}
		if f.Digest == "" || old.Digest != f.Digest {
			return DifferenceDiffers
		}
	}

	return DifferenceIdentical
}

// Vote is a participant's vote. IsStale is derived from the review's head
// version when participants are read and is never persisted.
type Vote struct {
	Value   int  `json:"value"`
	Version int  `json:"version"`
	IsStale bool `json:"isStale"`
}

// Participant is a reviewer, or the author.
type Participant struct {
	Required bool  `json:"required,omitempty"`
	Vote     *Vote `json:"vote,omitempty"`
}

// FileInfo and ReadMark are the per-file read state of a review.
type (
	FileInfo = store.FileInfo
	ReadMark = store.ReadMark
)

// Review tracks the discussion and approval state of one or more changes.
type Review struct {
	ID            int64                  `json:"id"`
	Author        string                 `json:"author"`
	Description   string                 `json:"description"`
	State         State                  `json:"state"`
	TestStatus    string                 `json:"testStatus,omitempty"`
	TestDetails   map[string]string      `json:"testDetails,omitempty"`
	DeployStatus  string                 `json:"deployStatus,omitempty"`
	DeployDetails map[string]string      `json:"deployDetails,omitempty"`
	Pending       bool                   `json:"pending"`
	Changes       []int64                `json:"changes"`
	Commits       []int64                `json:"commits"`
	Versions      []Version              `json:"versions"`
	Participants  map[string]Participant `json:"participants"`
	Projects      map[string][]string    `json:"projects"`
	Token         string                 `json:"token"`
	Created       time.Time              `json:"created"`
	Updated       time.Time              `json:"updated"`

	// revision is the store revision the review was loaded at.
	revision int64
}

// HeadVersion returns the number of the newest version, or 0 when the
// review has none yet.
func (r *Review) HeadVersion() int {
	return len(r.Versions)
}

// Version returns version n, counting from 1.
func (r *Review) Version(n int) fn.Option[Version] {
	if n < 1 || n > len(r.Versions) {
		return fn.None[Version]()
	}

	return fn.Some(r.Versions[n-1])
}

// HeadChange returns the change of the newest version.
func (r *Review) HeadChange() fn.Option[int64] {
	if len(r.Versions) == 0 {
		return fn.None[int64]()
	}

	return fn.Some(r.Versions[len(r.Versions)-1].Change)
}

// ParticipantsData returns a copy of the participants with vote staleness
// computed against the head version.
func (r *Review) ParticipantsData() map[string]Participant {
	head := r.HeadVersion()
	out := make(map[string]Participant, len(r.Participants))
	for user, p := range r.Participants {
		if p.Vote != nil {
			v := *p.Vote
			v.IsStale = v.Version != head
			p.Vote = &v
		}
		out[user] = p
	}

	return out
}

// SetParticipantsData replaces the participant set. The author is always
// kept. Votes in data are ignored: each kept participant retains the vote
// already cast, since votes only change through AddVote.
func (r *Review) SetParticipantsData(data map[string]Participant) {
	next := make(map[string]Participant, len(data)+1)
	for user, p := range data {
		p.Vote = r.Participants[user].Vote
		next[user] = p
	}
	if _, ok := next[r.Author]; !ok {
		next[r.Author] = r.Participants[r.Author]
	}
	r.Participants = next
}

// AddParticipant adds user, upgrading an existing optional participant to
// required when asked.
func (r *Review) AddParticipant(user string, required bool) {
	if r.Participants == nil {
		r.Participants = make(map[string]Participant)
	}
	p := r.Participants[user]
	p.Required = p.Required || required
	r.Participants[user] = p
}

// RemoveParticipant drops user unless they are the author.
func (r *Review) RemoveParticipant(user string) bool {
	if user == r.Author {
		return false
	}
	if _, ok := r.Participants[user]; !ok {
		return false
	}
	delete(r.Participants, user)

	return true
}

// Reviewers returns the sorted participants other than the author.
func (r *Review) Reviewers() []string {
	var out []string
	for user := range r.Participants {
		if user != r.Author {
			out = append(out, user)
		}
	}
	sort.Strings(out)

	return out
}

// AddVote records a vote of +1 or -1 by user against version, where 0
// means the head version. A value of 0 clears the vote.
func (r *Review) AddVote(user string, value, version int) error {
	if value < -1 || value > 1 {
		return fmt.Errorf("vote must be -1, 0 or 1, got %d", value)
	}
	if version == 0 {
		version = r.HeadVersion()
	}
	if r.Version(version).IsNone() {
		return fmt.Errorf("vote on version %d: %w", version, ErrNoVersion)
	}

	r.AddParticipant(user, false)
	p := r.Participants[user]
	if value == 0 {
		p.Vote = nil
	} else {
		p.Vote = &Vote{Value: value, Version: version}
	}
	r.Participants[user] = p

	return nil
}

// VoteCounts returns the number of current up and down votes. Stale votes
// are not counted.
func (r *Review) VoteCounts() (up, down int) {
	for _, p := range r.ParticipantsData() {
		if p.Vote == nil || p.Vote.IsStale {
			continue
		}
		switch p.Vote.Value {
		case 1:
			up++
		case -1:
			down++
		}
	}

	return up, down
}

// hasChange reports whether id is in list.
func hasChange(list []int64, id int64) bool {
	for _, c := range list {
		if c == id {
			return true
		}
	}

	return false
}

// toRecord encodes the review for the store.
func (r *Review) toRecord() (store.ReviewRecord, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return store.ReviewRecord{}, fmt.Errorf("encode review %d: %w",
			r.ID, err)
	}

	return store.ReviewRecord{
		ID:       r.ID,
		Author:   r.Author,
		State:    string(r.State),
		Pending:  r.Pending,
		Token:    r.Token,
		Data:     data,
		Revision: r.revision,
		Created:  r.Created,
	}, nil
}

// fromRecord decodes a stored review.
func fromRecord(rec store.ReviewRecord) (*Review, error) {
	var r Review
	if err := json.Unmarshal(rec.Data, &r); err != nil {
		return nil, fmt.Errorf("decode review %d: %w", rec.ID, err)
	}
	r.revision = rec.Revision
	r.Updated = rec.Updated
	if r.Participants == nil {
		r.Participants = make(map[string]Participant)
	}
	if r.Projects == nil {
		r.Projects = make(map[string][]string)
	}
	r.AddParticipant(r.Author, false)

	return &r, nil
}
