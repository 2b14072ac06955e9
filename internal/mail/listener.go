package mail

import (
	"context"
	"fmt"

	"github.com/roasbeef/p4review/internal/queue"
)

// ListenerPriority runs mail after the activity listener has composed the
// message.
const ListenerPriority = 10

// Listener sends the message left in an event's parameters.
type Listener struct {
	Sender Sender

	// Domain is used for the thread headers.
	Domain string
}

// Register attaches the mail listener to every task type.
func (l *Listener) Register(reg *queue.Registry) {
	for _, typ := range queue.TaskTypes {
		reg.OnTask(typ, "mail", ListenerPriority, l.Handle)
	}
}

// Handle sends the event's message, if any.
func (l *Listener) Handle(ctx context.Context, ev *queue.Event) error {
	msg, ok := ev.Params[ParamKey].(Message)
	if !ok || len(msg.To) == 0 {
		return nil
	}

	if msg.ReviewID > 0 {
		domain := l.Domain
		if domain == "" {
			domain = "p4review"
		}
		if msg.Headers == nil {
			msg.Headers = make(map[string]string)
		}
		thread := fmt.Sprintf("<review-%d@%s>", msg.ReviewID, domain)
		msg.Headers["In-Reply-To"] = thread
		msg.Headers["References"] = thread
		msg.Headers["X-P4Review-Review-Id"] = fmt.Sprint(msg.ReviewID)
	}

	if err := l.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send mail for task %d: %w", ev.Task.ID, err)
	}

	return nil
}
