// =============================
// File: internal/ledger/db.go
// =============================
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 16
	retryInterval      = time.Millisecond
)

var errStopIteration = errors.New("stop iteration")

// CommitHook observes the records of every committed transaction. Hooks run
// in log order while the commit lock is held and must not block or call
// back into the DB.
type CommitHook func(records []events.Record)

// Option configures a DB.
type Option func(*DB)

// WithMaxAttempts bounds how often a conflicting transaction is re-run.
func WithMaxAttempts(n uint) Option {
	return func(db *DB) {
		if n > 0 {
			db.maxAttempts = n
		}
	}
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// DB runs serializable transactions over a Store and owns the event log.
//
// Transactions are optimistic: fn runs against a private staging area, and at
// commit every key it read is checked against the store. If another commit
// changed one of them the whole fn is run again from scratch. Commits are a
// single atomic batch, so a failed fn or a lost race leaves no trace.
type DB struct {
	store  Store
	logger *zap.Logger

	maxAttempts uint
	now         func() time.Time

	commitMu sync.Mutex
	nextSeq  uint64
	hooks    []CommitHook
}

// NewDB opens the event log stored in store and returns a DB over it.
func NewDB(store Store, logger *zap.Logger, opts ...Option) (*DB, error) {
	db := &DB{
		store:       store,
		logger:      logger.Named("ledger"),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		nextSeq:     1,
	}
	for _, opt := range opts {
		opt(db)
	}

	last, err := store.Last([]byte{eventPrefix})
	switch {
	case err == nil:
		db.nextSeq = eventSeq(last) + 1
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to seek event log tail: %w", err)
	}

	db.logger.Info("Ledger opened", zap.Uint64("next_seq", db.nextSeq))
	return db, nil
}

// OnCommit registers a hook invoked after every successful commit that
// appended at least one event.
func (db *DB) OnCommit(h CommitHook) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	db.hooks = append(db.hooks, h)
}

// Update runs fn in a read-write transaction and returns the event records
// it appended. An error from fn aborts the transaction unchanged.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) ([]events.Record, error) {
	return db.run(ctx, false, fn)
}

// View runs fn against a consistent read-only snapshot.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	_, err := db.run(ctx, true, fn)
	return err
}

func (db *DB) run(ctx context.Context, readOnly bool, fn func(*Tx) error) ([]events.Record, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInterval
	policy.MaxInterval = retryInterval * 50

	attempts := 0
	operation := func() ([]events.Record, error) {
		attempts++
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}

		tx := newTx(db.store, readOnly, db.now())
		if err := fn(tx); err != nil {
			return nil, backoff.Permanent(err)
		}

		records, err := db.commit(ctx, tx)
		if err != nil && !errors.Is(err, ErrConflict) {
			return nil, backoff.Permanent(err)
		}
		return records, err
	}

	records, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(db.maxAttempts))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		if errors.Is(err, ErrConflict) {
			db.logger.Warn("Transaction abandoned after repeated conflicts",
				zap.Int("attempts", attempts))
		}
		return nil, err
	}
	if attempts > 1 {
		db.logger.Debug("Transaction committed after retry", zap.Int("attempts", attempts))
	}
	return records, nil
}

func (db *DB) commit(ctx context.Context, tx *Tx) ([]events.Record, error) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	ok, err := tx.validate()
	if err != nil {
		return nil, fmt.Errorf("failed to validate transaction: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}
	if tx.readOnly || (len(tx.writes) == 0 && len(tx.events) == 0) {
		return nil, nil
	}

	batch := &Batch{}
	for k, v := range tx.writes {
		batch.Put([]byte(k), v)
	}

	records := make([]events.Record, 0, len(tx.events))
	seq := db.nextSeq
	for _, ev := range tx.events {
		data, err := events.Encode(ev)
		if err != nil {
			return nil, err
		}
		batch.Put(EventKey(seq), data)
		records = append(records, events.Record{Seq: seq, Event: ev})
		seq++
	}

	if err := db.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to apply transaction: %w", err)
	}
	db.nextSeq = seq

	if len(records) > 0 {
		for _, h := range db.hooks {
			h(records)
		}
	}
	return records, nil
}

// Events returns up to limit log records with sequence numbers >= from, in
// append order. A non-positive limit returns every remaining record.
func (db *DB) Events(from uint64, limit int) ([]events.Record, error) {
	var out []events.Record
	err := db.store.Iterate([]byte{eventPrefix}, EventKey(from), func(key, value []byte) error {
		seq := eventSeq(key)
		ev, err := events.Decode(value)
		if err != nil {
			return fmt.Errorf("event %d: %w", seq, err)
		}
		out = append(out, events.Record{Seq: seq, Event: ev})
		if limit > 0 && len(out) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return out, nil
}

// LastSeq returns the sequence number of the newest log record, or 0.
func (db *DB) LastSeq() uint64 {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	return db.nextSeq - 1
}

// Close closes the underlying store.
func (db *DB) Close() error {
	return db.store.Close()
}
