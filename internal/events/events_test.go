package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/p4review/internal/queue"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})

	return nil
}

func newTestBus(pub Publisher) *Bus {
	b := NewBus(pub, "", nil)
	b.now = func() time.Time {
		return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	}

	return b
}

func TestPublishTask(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBus(pub)

	ev := &queue.Event{Task: queue.Task{
		ID: 9, Type: queue.TaskShelve, Subject: "12",
		Data: json.RawMessage(`{"user":"alice"}`),
	}}
	require.NoError(t, b.publishTask(context.Background(), ev))

	require.Len(t, pub.msgs, 1)
	require.Equal(t, "p4review.task.shelve", pub.msgs[0].subject)

	var got TaskEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	require.EqualValues(t, 9, got.ID)
	require.Equal(t, "12", got.Subject)
	require.JSONEq(t, `{"user":"alice"}`, string(got.Data))
}

func TestPublishFailureIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no servers")}
	b := newTestBus(pub)

	ev := &queue.Event{Task: queue.Task{Type: queue.TaskReview}}
	require.NoError(t, b.publishTask(context.Background(), ev))
}

func TestPublishCanceled(t *testing.T) {
	b := newTestBus(&fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := &queue.Event{Task: queue.Task{Type: queue.TaskReview}}
	require.ErrorIs(t, b.publishTask(ctx, ev), context.Canceled)
}

func TestWorkerEvents(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBus(pub, "swarm", nil)

	require.NoError(t, b.worker("startup")(context.Background(), nil))
	require.Len(t, pub.msgs, 1)
	require.Equal(t, "swarm.worker.startup", pub.msgs[0].subject)

	var got WorkerEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	require.Equal(t, "startup", got.Event)
}

func TestRegister(t *testing.T) {
	reg := queue.NewRegistry()
	newTestBus(&fakePublisher{}).Register(reg)

	for _, typ := range queue.TaskTypes {
		require.Equal(t, []string{"events"}, reg.Listeners(typ))
	}
}
