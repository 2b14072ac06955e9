package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Listener handles one task. Returning an error aborts the remaining
// listeners for that task and marks it failed.
type Listener func(ctx context.Context, ev *Event) error

// Event is what listeners receive. Params is shared by all listeners of a
// task so earlier listeners can leave data for later ones.
type Event struct {
	Task    Task
	Payload any
	Params  map[string]any
}

// Param returns a typed parameter set by an earlier listener.
func Param[T any](ev *Event, key string) fn.Option[T] {
	v, ok := ev.Params[key]
	if !ok {
		return fn.None[T]()
	}

	t, ok := v.(T)
	if !ok {
		return fn.None[T]()
	}

	return fn.Some(t)
}

type registration struct {
	name     string
	priority int
	seq      int
	fn       Listener
}

// Registry holds the listeners attached to each task type.
type Registry struct {
	mu        sync.RWMutex
	seq       int
	listeners map[TaskType][]registration
	startup   []registration
	shutdown  []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[TaskType][]registration),
	}
}

// OnTask attaches a listener to a task type. Higher priorities run first;
// equal priorities run in registration order.
func (r *Registry) OnTask(typ TaskType, name string, priority int,
	l Listener) {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners[typ] = r.insert(r.listeners[typ], name, priority, l)
}

// OnStartup attaches a listener that runs when a drain begins.
func (r *Registry) OnStartup(name string, priority int, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startup = r.insert(r.startup, name, priority, l)
}

// OnShutdown attaches a listener that runs when a drain ends.
func (r *Registry) OnShutdown(name string, priority int, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdown = r.insert(r.shutdown, name, priority, l)
}

func (r *Registry) insert(regs []registration, name string, priority int,
	l Listener) []registration {

	r.seq++
	regs = append(regs, registration{
		name:     name,
		priority: priority,
		seq:      r.seq,
		fn:       l,
	})
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})

	return regs
}

// Listeners returns the names of the listeners for a task type in the
// order they run.
func (r *Registry) Listeners(typ TaskType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.listeners[typ]))
	for _, reg := range r.listeners[typ] {
		names = append(names, reg.name)
	}

	return names
}

func (r *Registry) forType(typ TaskType) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]registration(nil), r.listeners[typ]...)
}

// ErrDrainRunning is returned when a drain is requested while another one
// is in progress.
var ErrDrainRunning = errors.New("queue drain already running")

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Store    *Store
	Registry *Registry

	// Lifetime bounds a single drain.
	Lifetime time.Duration

	// PollInterval is how often Run starts a drain.
	PollInterval time.Duration

	Log *slog.Logger
}

// Worker drains the queue and dispatches tasks to registered listeners.
type Worker struct {
	cfg WorkerConfig
	log *slog.Logger

	// drainMu admits one drain at a time.
	drainMu sync.Mutex
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg: cfg,
		log: log.With("component", "queue-worker"),
	}
}

// DrainResult summarizes one drain.
type DrainResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Drain processes tasks until the queue is empty, the lifetime elapses or
// ctx is cancelled. Only one drain runs at a time.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	if !w.drainMu.TryLock() {
		return res, ErrDrainRunning
	}
	defer w.drainMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Lifetime)
	defer cancel()

	w.runLifecycle(ctx, w.cfg.Registry.startupListeners(), "startup")
	defer w.runLifecycle(
		context.WithoutCancel(ctx),
		w.cfg.Registry.shutdownListeners(), "shutdown",
	)

	for ctx.Err() == nil {
		next, err := w.cfg.Store.Claim(ctx)
		if err != nil {
			return res, fmt.Errorf("claim: %w", err)
		}
		if next.IsNone() {
			break
		}

		task := next.UnwrapOr(Task{})
		if err := w.process(ctx, task); err != nil {
			res.Failed++
		} else {
			res.Processed++
		}
	}

	return res, nil
}

// process runs every listener for a task and records the outcome.
func (w *Worker) process(ctx context.Context, task Task) error {
	start := time.Now()
	defer func() {
		taskDuration.WithLabelValues(string(task.Type)).Observe(
			time.Since(start).Seconds(),
		)
	}()

	err := w.dispatch(ctx, task)

	// Outcome bookkeeping must land even if the drain deadline hit.
	storeCtx := context.WithoutCancel(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "Task failed",
			"task_id", task.ID, "type", task.Type,
			"subject", task.Subject, "attempt", task.Attempts,
			"error", err)
		tasksProcessed.WithLabelValues(
			string(task.Type), "failed",
		).Inc()

		if markErr := w.cfg.Store.MarkFailed(
			storeCtx, task.ID, err,
		); markErr != nil {
			w.log.ErrorContext(ctx, "Unable to mark task failed",
				"task_id", task.ID, "error", markErr)
		}

		return err
	}

	tasksProcessed.WithLabelValues(string(task.Type), "done").Inc()
	if markErr := w.cfg.Store.MarkDone(storeCtx, task.ID); markErr != nil {
		w.log.ErrorContext(ctx, "Unable to mark task done",
			"task_id", task.ID, "error", markErr)
		return markErr
	}

	return nil
}

func (w *Worker) dispatch(ctx context.Context, task Task) error {
	payload, err := UnmarshalPayload(task.Type, task.Data)
	if err != nil {
		return err
	}

	ev := &Event{
		Task:    task,
		Payload: payload,
		Params:  make(map[string]any),
	}

	for _, reg := range w.cfg.Registry.forType(task.Type) {
		if err := runListener(ctx, reg, ev); err != nil {
			return fmt.Errorf("listener %s: %w", reg.name, err)
		}
	}

	return nil
}

// runListener turns a listener panic into an error so one bad listener
// cannot take the worker down.
func runListener(ctx context.Context, reg registration,
	ev *Event) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return reg.fn(ctx, ev)
}

func (w *Worker) runLifecycle(ctx context.Context, regs []registration,
	phase string) {

	ev := &Event{Params: make(map[string]any)}
	for _, reg := range regs {
		if err := runListener(ctx, reg, ev); err != nil {
			w.log.WarnContext(ctx, "Lifecycle listener failed",
				"phase", phase, "listener", reg.name,
				"error", err)
		}
	}
}

func (r *Registry) startupListeners() []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]registration(nil), r.startup...)
}

func (r *Registry) shutdownListeners() []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]registration(nil), r.shutdown...)
}

// Run resets tasks left running by an earlier process and then drains the
// queue every PollInterval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	reset, err := w.cfg.Store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset running tasks: %w", err)
	}
	if reset > 0 {
		w.log.InfoContext(ctx, "Requeued interrupted tasks",
			"count", reset)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil &&
			!errors.Is(err, ErrDrainRunning) {

			w.log.ErrorContext(ctx, "Queue drain failed",
				"error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Request is a message accepted by Worker.Receive.
type Request interface {
	isQueueRequest()
}

// Response is returned by Worker.Receive.
type Response interface {
	isQueueResponse()
}

// DrainRequest asks the worker to drain the queue now.
type DrainRequest struct{}

// StatsRequest asks for queue statistics.
type StatsRequest struct{}

// DrainResponse carries the result of a DrainRequest.
type DrainResponse struct {
	Result DrainResult
}

// StatsResponse carries the result of a StatsRequest.
type StatsResponse struct {
	Stats Stats
}

func (DrainRequest) isQueueRequest()   {}
func (StatsRequest) isQueueRequest()   {}
func (DrainResponse) isQueueResponse() {}
func (StatsResponse) isQueueResponse() {}

// Receive dispatches a worker request.
func (w *Worker) Receive(ctx context.Context,
	msg Request) fn.Result[Response] {

	switch msg.(type) {
	case DrainRequest:
		res, err := w.Drain(ctx)
		if err != nil {
			return fn.Err[Response](err)
		}
		return fn.Ok[Response](DrainResponse{Result: res})

	case StatsRequest:
		stats, err := w.cfg.Store.Stats(ctx)
		if err != nil {
			return fn.Err[Response](err)
		}
		return fn.Ok[Response](StatsResponse{Stats: stats})

	default:
		return fn.Err[Response](fmt.Errorf(
			"unknown message type: %T", msg,
		))
	}
}
