package attendance

import (
	"context"
	"sync"
	"time"
)

// ReplayGuard remembers the codes already scanned.
type ReplayGuard interface {
	// Claim records `key` for `ttl`; it returns ErrCodeReplayed if `key` was already claimed and did not expire.
	Claim(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

const sweepEvery = 1024

// MemoryReplayGuard is a ReplayGuard for a single instance deployment.
type MemoryReplayGuard struct {
	mu     sync.Mutex
	keys   map[string]time.Time // expirations
	claims int
	now    func() time.Time
}

var _ ReplayGuard = (*MemoryReplayGuard)(nil)

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *MemoryReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		ReplayClaimsTotal.WithLabelValues("memory", "replayed").Inc()
		return ErrCodeReplayed
	}
	g.keys[key] = now.Add(ttl)

	g.claims++
	if g.claims%sweepEvery == 0 {
		g.sweep(now)
	}
	ReplayClaimsTotal.WithLabelValues("memory", "claimed").Inc()
	return nil
}

// Len returns the number of keys held, expired or not.
func (g *MemoryReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

// Sweep drops the expired keys.
func (g *MemoryReplayGuard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep(g.now())
}

func (g *MemoryReplayGuard) sweep(now time.Time) {
	for k, exp := range g.keys {
		if !now.Before(exp) {
			delete(g.keys, k)
		}
	}
}

func (g *MemoryReplayGuard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = make(map[string]time.Time)
	return nil
}
