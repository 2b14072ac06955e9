package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roasbeef/p4review/internal/mail"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/review"
)

// ListenerPriority runs activity after the review listener and before mail.
const ListenerPriority = 50

// Register attaches the activity listeners to reg.
func (s *Service) Register(reg *queue.Registry) {
	reg.OnTask(queue.TaskReview, "activity.review", ListenerPriority,
		s.onReview)
	reg.OnTask(queue.TaskCommit, "activity.commit", ListenerPriority,
		s.onCommit)
	reg.OnTask(queue.TaskComment, "activity.comment", ListenerPriority,
		s.onComment)
}

// onReview records what happened to a review and leaves a notification
// for the mail listener.
func (s *Service) onReview(ctx context.Context, ev *queue.Event) error {
	r := queue.Param[*review.Review](ev, review.ParamReview).UnwrapOr(nil)
	if r == nil {
		return fmt.Errorf("review task %d: review not loaded", ev.Task.ID)
	}

	p, ok := ev.Payload.(*queue.ReviewPayload)
	if !ok || p.Action == "" {
		return nil
	}

	user := p.User
	if user == "" {
		user = r.Author
	}

	entry, err := s.Record(ctx, RecordRequest{
		Type:        "review",
		User:        user,
		Action:      p.Action,
		Target:      fmt.Sprintf("review %d", r.ID),
		ReviewID:    r.ID,
		Change:      r.HeadChange().UnwrapOr(p.Change),
		Description: r.Description,
	})
	if err != nil {
		return err
	}

	ev.Params[mail.ParamKey] = reviewMail(r, entry)

	return nil
}

// onCommit records one entry per committed change.
func (s *Service) onCommit(ctx context.Context, ev *queue.Event) error {
	change, err := strconv.ParseInt(ev.Task.Subject, 10, 64)
	if err != nil {
		return fmt.Errorf("commit task: bad change %q", ev.Task.Subject)
	}

	var user string
	if p, ok := ev.Payload.(*queue.ChangePayload); ok {
		user = p.User
	}

	reviews := queue.Param[[]*review.Review](ev, review.ParamReviews).
		UnwrapOr(nil)

	req := RecordRequest{
		Type:   "change",
		User:   user,
		Action: "committed",
		Target: fmt.Sprintf("change %d", change),
		Change: change,
	}
	if len(reviews) > 0 {
		req.ReviewID = reviews[0].ID
		req.Description = reviews[0].Description
		if req.User == "" {
			req.User = reviews[0].Author
		}
	}

	_, err = s.Record(ctx, req)

	return err
}

// onComment records a comment and mails the review's participants.
func (s *Service) onComment(ctx context.Context, ev *queue.Event) error {
	p, ok := ev.Payload.(*queue.CommentPayload)
	if !ok {
		return fmt.Errorf("comment task %d: missing payload", ev.Task.ID)
	}

	target := "comment " + ev.Task.Subject
	if p.Review > 0 {
		target = fmt.Sprintf("review %d", p.Review)
	}

	entry, err := s.Record(ctx, RecordRequest{
		Type:        "comment",
		User:        p.User,
		Action:      "commented on",
		Target:      target,
		ReviewID:    p.Review,
		Description: p.Body,
	})
	if err != nil {
		return err
	}

	r := queue.Param[*review.Review](ev, review.ParamReview).UnwrapOr(nil)
	if r != nil {
		ev.Params[mail.ParamKey] = reviewMail(r, entry)
	}

	return nil
}

// reviewMail addresses an entry to everyone on the review except the user
// who acted.
func reviewMail(r *review.Review, e Entry) mail.Message {
	users := make([]string, 0, len(r.Participants))
	for u := range r.Participants {
		users = append(users, u)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s %s %s\n\n", e.User, e.Action, e.Target)
	fmt.Fprintf(&body, "State: %s\n", r.State)
	if head := r.HeadChange().UnwrapOr(0); head > 0 {
		fmt.Fprintf(&body, "Change: %d\n", head)
	}
	if e.Type == "comment" {
		fmt.Fprintf(&body, "\n%s\n", e.Description)
	} else {
		fmt.Fprintf(&body, "\n%s\n", r.Description)
	}

	return mail.Message{
		To:       mail.Recipients(users, e.User),
		Subject:  mail.Subject(r.ID, r.Description),
		Body:     body.String(),
		ReviewID: r.ID,
	}
}
