// Package events publishes queue activity to NATS so other services can
// follow reviews without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roasbeef/p4review/internal/queue"
)

// ListenerPriority runs the publisher after every other listener.
const ListenerPriority = 0

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "p4review"

// Publisher is the subset of *nats.Conn the bus needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials the NATS server at url.
func Connect(url string, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("p4review"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	return nc, nil
}

// TaskEvent is the JSON body published for each processed task.
type TaskEvent struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data,omitempty"`
	Time    time.Time       `json:"time"`
}

// WorkerEvent is published when a worker drain starts or stops.
type WorkerEvent struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
}

// Bus publishes queue events.
type Bus struct {
	pub    Publisher
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

// NewBus creates a bus publishing through pub. An empty prefix means
// DefaultPrefix.
func NewBus(pub Publisher, prefix string, log *slog.Logger) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}

	return &Bus{
		pub:    pub,
		prefix: prefix,
		log:    log.With("component", "events"),
		now:    time.Now,
	}
}

// TaskSubject returns the subject tasks of typ are published on.
func (b *Bus) TaskSubject(typ queue.TaskType) string {
	return fmt.Sprintf("%s.task.%s", b.prefix, typ)
}

// Register attaches the publisher to every task type and to the worker
// lifecycle.
func (b *Bus) Register(reg *queue.Registry) {
	for _, typ := range queue.TaskTypes {
		reg.OnTask(typ, "events", ListenerPriority, b.publishTask)
	}
	reg.OnStartup("events", ListenerPriority, b.worker("startup"))
	reg.OnShutdown("events", ListenerPriority, b.worker("shutdown"))
}

func (b *Bus) publishTask(ctx context.Context, ev *queue.Event) error {
	return b.publish(ctx, b.TaskSubject(ev.Task.Type), TaskEvent{
		ID:      ev.Task.ID,
		Type:    string(ev.Task.Type),
		Subject: ev.Task.Subject,
		Data:    ev.Task.Data,
		Time:    b.now(),
	})
}

func (b *Bus) worker(event string) queue.Listener {
	subject := fmt.Sprintf("%s.worker.%s", b.prefix, event)

	return func(ctx context.Context, _ *queue.Event) error {
		return b.publish(ctx, subject, WorkerEvent{
			Event: event,
			Time:  b.now(),
		})
	}
}

// publish marshals v and sends it. Publish failures are logged, not
// returned.
func (b *Bus) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}

	if err := b.pub.Publish(subject, data); err != nil {
		b.log.WarnContext(ctx, "Unable to publish event",
			"subject", subject, "error", err)
	}

	return nil
}
