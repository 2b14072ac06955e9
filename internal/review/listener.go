package review

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roasbeef/p4review/internal/queue"
)

// Event parameters set by the review listener for later listeners.
const (
	// ParamReview holds the *Review a review task refers to.
	ParamReview = "review"

	// ParamReviews holds the []*Review touched by a shelve or commit.
	ParamReviews = "reviews"
)

// ListenerPriority runs the review listener ahead of activity and mail.
const ListenerPriority = 100

// Register attaches the review listeners to reg.
func (s *Service) Register(reg *queue.Registry) {
	reg.OnTask(queue.TaskShelve, "review.change", ListenerPriority,
		s.onChange)
	reg.OnTask(queue.TaskCommit, "review.change", ListenerPriority,
		s.onChange)
	reg.OnTask(queue.TaskReview, "review.load", ListenerPriority,
		s.onReview)
	reg.OnTask(queue.TaskComment, "review.load", ListenerPriority,
		s.onComment)
}

// onChange creates or updates the reviews of a shelved or committed
// change.
func (s *Service) onChange(ctx context.Context, ev *queue.Event) error {
	change, err := strconv.ParseInt(ev.Task.Subject, 10, 64)
	if err != nil {
		return fmt.Errorf("%s task: bad change %q", ev.Task.Type,
			ev.Task.Subject)
	}

	p, ok := ev.Payload.(*queue.ChangePayload)
	if !ok {
		p = &queue.ChangePayload{}
	}

	reviews, err := s.ProcessChange(ctx, change, p.OldChange, p.User)
	if err != nil {
		return err
	}
	ev.Params[ParamReviews] = reviews

	return nil
}

// onReview loads the review a review task refers to.
func (s *Service) onReview(ctx context.Context, ev *queue.Event) error {
	id, err := strconv.ParseInt(ev.Task.Subject, 10, 64)
	if err != nil {
		return fmt.Errorf("review task: bad review id %q",
			ev.Task.Subject)
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ev.Params[ParamReview] = r

	return nil
}

// onComment loads the review a comment was left on, if any.
func (s *Service) onComment(ctx context.Context, ev *queue.Event) error {
	p, ok := ev.Payload.(*queue.CommentPayload)
	if !ok || p.Review <= 0 {
		return nil
	}

	r, err := s.Get(ctx, p.Review)
	if err != nil {
		return err
	}
	ev.Params[ParamReview] = r

	return nil
}
