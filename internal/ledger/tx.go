// =============================
// File: internal/ledger/tx.go
// =============================
package ledger

import (
	"bytes"
	"errors"
	"time"

	"github.com/rovshanmuradov/pumpcurve/internal/events"
)

// Tx is a staged view over committed state. Reads see the transaction's own
// writes first. Nothing reaches the store until the owning DB commits it, so
// abandoning a Tx discards every change it made.
type Tx struct {
	store    Store
	readOnly bool
	now      time.Time

	// reads holds the committed value observed for each key (nil when absent);
	// they are re-checked at commit.
	reads  map[string][]byte
	writes map[string][]byte
	events []events.Event
}

func newTx(store Store, readOnly bool, now time.Time) *Tx {
	return &Tx{
		store:    store,
		readOnly: readOnly,
		now:      now,
		reads:    make(map[string][]byte),
		writes:   make(map[string][]byte),
	}
}

// Now is the timestamp shared by every event of this transaction.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// get returns the value of key and whether it exists.
func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if v, ok := tx.writes[k]; ok {
		return v, true, nil
	}
	if v, ok := tx.reads[k]; ok {
		return v, v != nil, nil
	}

	v, err := tx.store.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		tx.reads[k] = nil
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	tx.reads[k] = v
	return v, true, nil
}

func (tx *Tx) put(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	// Record the pre-image so blind writes are validated too.
	if _, _, err := tx.get(key); err != nil {
		return err
	}
	tx.writes[string(key)] = value
	return nil
}

// Emit stages an audit event. It is appended to the event log only if the
// transaction commits, after all of its state changes.
func (tx *Tx) Emit(ev events.Event) {
	tx.events = append(tx.events, ev)
}

// Events returns the events staged so far.
func (tx *Tx) Events() []events.Event {
	return tx.events
}

// validate reports whether every key read still holds the observed value.
func (tx *Tx) validate() (bool, error) {
	for k, observed := range tx.reads {
		current, err := tx.store.Get([]byte(k))
		switch {
		case errors.Is(err, ErrNotFound):
			if observed != nil {
				return false, nil
			}
		case err != nil:
			return false, err
		default:
			if observed == nil || !bytes.Equal(observed, current) {
				return false, nil
			}
		}
	}
	return true, nil
}
