// =============================
// File: internal/ledger/store.go
// =============================
package ledger

import (
	"bytes"
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("ledger: key not found")
	ErrStoreClosed = errors.New("ledger: store is closed")
	ErrConflict    = errors.New("ledger: transaction conflict")
	ErrReadOnly    = errors.New("ledger: write in read-only transaction")
)

// Store is a durable key-value account store. Apply must be atomic: either
// every operation of the batch becomes visible or none does.
//
// Iterate visits keys with prefix in ascending order, starting at the first
// key >= start (a nil start means the beginning of the prefix). Last returns
// the greatest key with prefix, or ErrNotFound.
type Store interface {
	Get(key []byte) ([]byte, error)
	Apply(ctx context.Context, b *Batch) error
	Iterate(prefix, start []byte, fn func(key, value []byte) error) error
	Last(prefix []byte) ([]byte, error)
	Close() error
}

type batchOpType uint8

const (
	batchPut batchOpType = iota
	batchDelete
)

type batchOp struct {
	typ   batchOpType
	key   []byte
	value []byte
}

// Batch collects writes for one atomic Apply.
type Batch struct {
	ops []batchOp
}

func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{typ: batchPut, key: key, value: value})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{typ: batchDelete, key: key})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// lowerBound returns the larger of prefix and start.
func lowerBound(prefix, start []byte) []byte {
	if bytes.Compare(start, prefix) > 0 {
		return start
	}
	return prefix
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
