package activity

import "time"

// Request is the sealed interface for activity service requests.
type Request interface {
	isActivityRequest()
}

// Response is the sealed interface for activity service responses.
type Response interface {
	isActivityResponse()
}

// RecordRequest records a new activity entry.
type RecordRequest struct {
	// Type is the kind of object acted on: review, change, comment, job.
	Type string

	// User performed the action.
	User string

	// Action is a past-tense verb phrase, e.g. "approved".
	Action string

	// Target names the object, e.g. "review 12".
	Target string

	ReviewID    int64
	Change      int64
	Description string
}

func (RecordRequest) isActivityRequest() {}

// RecordResponse is the response to a RecordRequest.
type RecordResponse struct {
	Entry Entry
	Error error
}

func (RecordResponse) isActivityResponse() {}

// ListRecentRequest lists the newest entries.
type ListRecentRequest struct {
	// Limit caps the result. Zero means DefaultLimit.
	Limit int
}

func (ListRecentRequest) isActivityRequest() {}

// ListRecentResponse is the response to a ListRecentRequest.
type ListRecentResponse struct {
	Entries []Entry
	Error   error
}

func (ListRecentResponse) isActivityResponse() {}

// ListByReviewRequest lists the entries attached to one review.
type ListByReviewRequest struct {
	ReviewID int64
	Limit    int
}

func (ListByReviewRequest) isActivityRequest() {}

// ListByReviewResponse is the response to a ListByReviewRequest.
type ListByReviewResponse struct {
	Entries []Entry
	Error   error
}

func (ListByReviewResponse) isActivityResponse() {}

// CleanupRequest removes entries older than a cutoff.
type CleanupRequest struct {
	OlderThan time.Time
}

func (CleanupRequest) isActivityRequest() {}

// CleanupResponse is the response to a CleanupRequest.
type CleanupResponse struct {
	Deleted int64
	Error   error
}

func (CleanupResponse) isActivityResponse() {}
