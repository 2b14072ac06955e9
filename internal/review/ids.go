package review

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/spec"
)

// IDAllocator hands out review ids.
type IDAllocator interface {
	NextID(ctx context.Context) (int64, error)
}

// ChangeIDAllocator draws review ids from the server's change counter so
// reviews and changes never collide. It creates an empty change to reserve
// the number and then deletes it.
type ChangeIDAllocator struct {
	P4     p4.Client
	Client string
	User   string
	Log    *slog.Logger
}

// NextID implements IDAllocator.
func (a *ChangeIDAllocator) NextID(ctx context.Context) (int64, error) {
	placeholder := spec.NewChange(a.Client, a.User, "Placeholder for review")

	id, err := spec.Save(ctx, a.P4, placeholder)
	if err != nil {
		return 0, fmt.Errorf("reserve review id: %w", err)
	}

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("reserve review id: unexpected change %q",
			id)
	}

	// The number stays reserved once the change is gone.
	err = spec.Delete[spec.Change](ctx, a.P4, id, true)
	if err != nil && a.Log != nil {
		a.Log.WarnContext(ctx, "Unable to delete placeholder change",
			"change", n, "error", err)
	}

	return n, nil
}

// SequenceAllocator hands out increasing ids from memory.
type SequenceAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewSequenceAllocator starts the sequence at first.
func NewSequenceAllocator(first int64) *SequenceAllocator {
	return &SequenceAllocator{next: first}
}

// NextID implements IDAllocator.
func (a *SequenceAllocator) NextID(context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.next
	a.next++

	return n, nil
}
