package queue

import (
	"encoding/json"
	"fmt"
)

// ChangePayload is carried by shelve, commit and change tasks.
type ChangePayload struct {
	// User triggered the event, when known.
	User string `json:"user,omitempty"`

	// OldChange is the pending number of a change renumbered on submit.
	OldChange int64 `json:"oldChange,omitempty"`
}

// ReviewPayload is carried by review tasks and describes what happened to
// the review named by the task subject.
type ReviewPayload struct {
	User   string `json:"user,omitempty"`
	Action string `json:"action,omitempty"`

	IsAdd               bool `json:"isAdd,omitempty"`
	IsUpdate            bool `json:"isUpdate,omitempty"`
	IsStateChange       bool `json:"isStateChange,omitempty"`
	IsVote              bool `json:"isVote,omitempty"`
	IsReviewersChange   bool `json:"isReviewersChange,omitempty"`
	IsDescriptionChange bool `json:"isDescriptionChange,omitempty"`
	IsStatusChange      bool `json:"isStatusChange,omitempty"`

	PreviousState string `json:"previousState,omitempty"`
	State         string `json:"state,omitempty"`
	Change        int64  `json:"change,omitempty"`
	Version       int    `json:"version,omitempty"`

	// TestURL and DeployURL are the status callbacks for the review's
	// current version. Runners replace StatusPlaceholder with the result
	// before calling them.
	TestURL   string `json:"testUrl,omitempty"`
	DeployURL string `json:"deployUrl,omitempty"`
}

// StatusPlaceholder stands for the reported status in callback URLs.
const StatusPlaceholder = "{status}"

// SpecPayload is carried by job, user and group tasks.
type SpecPayload struct {
	User string `json:"user,omitempty"`
}

// CommentPayload is carried by comment tasks.
type CommentPayload struct {
	User   string `json:"user"`
	Review int64  `json:"review,omitempty"`
	Body   string `json:"body"`
}

// MarshalPayload serializes a payload for storage. A nil payload is stored
// as an empty object.
func MarshalPayload(payload any) (string, error) {
	if payload == nil {
		return "{}", nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	return string(data), nil
}

// UnmarshalPayload decodes a task's data into the payload type of its task
// type.
func UnmarshalPayload(typ TaskType, data []byte) (any, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	var target any
	switch typ {
	case TaskShelve, TaskCommit, TaskChange:
		target = &ChangePayload{}

	case TaskReview:
		target = &ReviewPayload{}

	case TaskJob, TaskUser, TaskGroup:
		target = &SpecPayload{}

	case TaskComment:
		target = &CommentPayload{}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, typ)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", typ, err)
	}

	return target, nil
}

// DecodePayload decodes a task's data into P.
func DecodePayload[P any](t Task) (*P, error) {
	v, err := UnmarshalPayload(t.Type, t.Data)
	if err != nil {
		return nil, err
	}

	p, ok := v.(*P)
	if !ok {
		return nil, fmt.Errorf("task %d of type %s carries %T", t.ID,
			t.Type, v)
	}

	return p, nil
}
