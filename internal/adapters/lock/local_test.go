package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/likeli/internal/adapters/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "market:1")
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	u1, err := l.Lock(ctx, "market:1")
	require.NoError(t, err)
	defer u1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	u2, err := l.Lock(ctx2, "market:2")
	require.NoError(t, err)
	u2()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := lock.NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotente

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}
