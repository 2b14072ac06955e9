package db

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roasbeef/p4review/internal/db/sqlc"
)

const (
	// DefaultTxRetries is how many times a busy transaction is attempted.
	DefaultTxRetries = 10

	// DefaultRetryDelay is the base backoff. Each wait is drawn from
	// 50%-150% of it and doubled per attempt.
	DefaultRetryDelay = 40 * time.Millisecond

	// DefaultMaxRetryDelay caps a single backoff.
	DefaultMaxRetryDelay = 3 * time.Second
)

type txConfig struct {
	retries  int
	delay    time.Duration
	maxDelay time.Duration
}

// backoff returns the wait before retry attempt n.
func (c *txConfig) backoff(attempt int) time.Duration {
	if c.delay <= 0 {
		return 0
	}

	d := c.delay/2 + rand.N(c.delay)
	d <<= min(attempt, 16)

	return min(d, c.maxDelay)
}

// TxOption tunes transaction retries.
type TxOption func(*txConfig)

// WithTxRetries sets how many attempts a busy transaction gets.
func WithTxRetries(n int) TxOption {
	return func(c *txConfig) {
		c.retries = n
	}
}

// WithTxRetryDelay sets the base backoff between attempts.
func WithTxRetryDelay(d time.Duration) TxOption {
	return func(c *txConfig) {
		c.delay = d
	}
}

// Store wraps the generated queries with retrying transactions.
type Store struct {
	db      *sql.DB
	queries *sqlc.Queries
	cfg     txConfig
	log     *slog.Logger
}

// NewStore creates a Store over an already migrated database.
func NewStore(db *sql.DB, log *slog.Logger, opts ...TxOption) *Store {
	if log == nil {
		log = slog.Default()
	}

	cfg := txConfig{
		retries:  DefaultTxRetries,
		delay:    DefaultRetryDelay,
		maxDelay: DefaultMaxRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{
		db:      db,
		queries: sqlc.New(db),
		cfg:     cfg,
		log:     log,
	}
}

// Querier returns the non-transactional queries.
func (s *Store) Querier() *sqlc.Queries {
	return s.queries
}

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, q *sqlc.Queries) error

// WithTx runs fn inside a write transaction. Busy and locked errors restart
// the whole body, so fn must not have side effects outside the database.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	return s.execTx(ctx, false, fn)
}

// WithReadTx runs fn inside a read-only transaction.
func (s *Store) WithReadTx(ctx context.Context, fn TxFunc) error {
	return s.execTx(ctx, true, fn)
}

func (s *Store) execTx(ctx context.Context, readOnly bool, fn TxFunc) error {
	for attempt := 0; attempt < s.cfg.retries; attempt++ {
		err := s.runTx(ctx, readOnly, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return MapSQLError(err)
		}

		wait := s.cfg.backoff(attempt)
		s.log.DebugContext(ctx, "Retrying busy transaction",
			"attempt", attempt, "delay", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return ErrRetriesExceeded
}

// runTx runs a single attempt of fn.
func (s *Store) runTx(ctx context.Context, readOnly bool, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return err
	}

	// Rollback after a successful commit is a no-op.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, s.queries.WithTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
