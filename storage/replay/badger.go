// Package replay persists claimed attendance codes, so that a restart cannot reopen them to replays.
package replay

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
)

const keyPrefix = "code:"

var ErrClosed = errors.New("replay guard is closed")

// BadgerGuard is an attendance.ReplayGuard backed by BadgerDB.
type BadgerGuard struct {
	db     *badger.DB
	ownsDB bool
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ attendance.ReplayGuard = (*BadgerGuard)(nil)

// Open opens the database in `dir` (in memory when empty) and returns a guard owning it.
func Open(dir string) (*BadgerGuard, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening replay database")
	}
	g := NewBadgerGuard(db)
	g.ownsDB = true
	return g, nil
}

// NewBadgerGuard uses a database shared with other components; closing the guard leaves it open.
func NewBadgerGuard(db *badger.DB) *BadgerGuard {
	return &BadgerGuard{db: db, now: time.Now}
}

func (g *BadgerGuard) Claim(_ context.Context, key string, ttl time.Duration) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}

	k := []byte(keyPrefix + key)
	now := g.now()
	err := g.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		switch {
		case err == nil:
			var exp int64
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					exp = int64(binary.BigEndian.Uint64(val))
				}
				return nil
			}); err != nil {
				return err
			}
			if now.UnixNano() < exp {
				return attendance.ErrCodeReplayed
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(now.Add(ttl).UnixNano()))
		// badger expires at second precision: keep the entry a second longer and check `val`
		return txn.SetEntry(badger.NewEntry(k, val).WithTTL(ttl + time.Second))
	})

	switch {
	case err == nil:
		attendance.ReplayClaimsTotal.WithLabelValues("badger", "claimed").Inc()
		return nil
	case errors.Is(err, attendance.ErrCodeReplayed), errors.Is(err, badger.ErrConflict):
		// a conflict means a concurrent transaction claimed the same key
		attendance.ReplayClaimsTotal.WithLabelValues("badger", "replayed").Inc()
		return attendance.ErrCodeReplayed
	default:
		attendance.ReplayClaimsTotal.WithLabelValues("badger", "error").Inc()
		return errors.Wrap(err, "claiming code")
	}
}

// RunGC collects the value log garbage every `interval`, until `ctx` is done.
func (g *BadgerGuard) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.RLock()
			if !g.closed {
				for g.db.RunValueLogGC(0.5) == nil {
				}
			}
			g.mu.RUnlock()
		}
	}
}

func (g *BadgerGuard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.ownsDB {
		return g.db.Close()
	}
	return nil
}
