// =============================
// File: internal/ledger/pebble.go
// =============================
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultCacheSize = 1024

// PebbleOptions configures OpenPebble.
type PebbleOptions struct {
	// InMemory keeps all files in a memory-backed filesystem.
	InMemory bool
	// CacheSize is the number of decoded records kept in front of pebble.
	CacheSize int
}

// PebbleStore is a Store on top of a pebble database with an LRU read cache.
type PebbleStore struct {
	mu     sync.RWMutex
	db     *pebble.DB
	cache  *lru.Cache[string, []byte]
	logger *zap.Logger
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, opts PebbleOptions, logger *zap.Logger) (*PebbleStore, error) {
	pebbleOpts := &pebble.Options{}
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	logger.Info("Pebble store opened",
		zap.String("path", path),
		zap.Bool("in_memory", opts.InMemory),
		zap.Int("cache_size", size))

	return &PebbleStore{db: db, cache: cache, logger: logger.Named("pebble")}, nil
}

func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrStoreClosed
	}

	if v, ok := p.cache.Get(string(key)); ok {
		return append([]byte(nil), v...), nil
	}

	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	valCopy := append([]byte(nil), val...)
	p.cache.Add(string(key), valCopy)
	return append([]byte(nil), valCopy...), nil
}

func (p *PebbleStore) Apply(_ context.Context, b *Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return ErrStoreClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	for _, op := range b.ops {
		switch op.typ {
		case batchPut:
			if err := batch.Set(op.key, op.value, nil); err != nil {
				return err
			}
		case batchDelete:
			if err := batch.Delete(op.key, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown batch operation type: %d", op.typ)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	for _, op := range b.ops {
		switch op.typ {
		case batchPut:
			p.cache.Add(string(op.key), append([]byte(nil), op.value...))
		case batchDelete:
			p.cache.Remove(string(op.key))
		}
	}
	return nil
}

func (p *PebbleStore) Iterate(prefix, start []byte, fn func(key, value []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrStoreClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound(prefix, start),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *PebbleStore) Last(prefix []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrStoreClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return append([]byte(nil), iter.Key()...), nil
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.cache.Purge()
	p.logger.Info("Pebble store closed")
	return err
}
