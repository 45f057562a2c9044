package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/attendance"
)

func openGuard(t *testing.T) *BadgerGuard {
	t.Helper()
	g, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestBadgerGuard_Claim(t *testing.T) {
	ctx := context.Background()
	g := openGuard(t)
	now := time.Now()
	g.now = func() time.Time { return now }

	require.NoError(t, g.Claim(ctx, "sid:1", 8*time.Second))
	assert.Equal(t, attendance.ErrCodeReplayed, g.Claim(ctx, "sid:1", 8*time.Second))
	assert.NoError(t, g.Claim(ctx, "sid:2", 8*time.Second))

	now = now.Add(8 * time.Second)
	assert.NoError(t, g.Claim(ctx, "sid:1", 8*time.Second), "expired keys can be claimed again")
}

func TestBadgerGuard_Concurrent(t *testing.T) {
	ctx := context.Background()
	g := openGuard(t)

	var claimed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Claim(ctx, "sid:42", time.Minute) == nil {
				atomic.AddInt32(&claimed, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, claimed)
}

func TestBadgerGuard_Close(t *testing.T) {
	g, err := Open("")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, ErrClosed, g.Claim(context.Background(), "sid:1", time.Second))
}

func TestBadgerGuard_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	g, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, g.Claim(ctx, "sid:1", time.Minute))
	require.NoError(t, g.Close())

	g, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = g.Close() }()
	assert.Equal(t, attendance.ErrCodeReplayed, g.Claim(ctx, "sid:1", time.Minute))
}
