package guard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireRelease(t *testing.T) {
	g := New()

	require.True(t, g.TryAcquire("BTC_USDT"))
	require.True(t, g.Held("BTC_USDT"))

	// second acquire on the same symbol is rejected
	require.False(t, g.TryAcquire("BTC_USDT"))

	// other symbols are independent
	require.True(t, g.TryAcquire("ETH_USDT"))

	g.Release("BTC_USDT")
	require.False(t, g.Held("BTC_USDT"))
	require.True(t, g.TryAcquire("BTC_USDT"))
}

func TestReleaseOnErrorPath(t *testing.T) {
	g := New()

	place := func() error {
		if !g.TryAcquire("BTC_USDT") {
			return ErrSymbolLocked
		}
		defer g.Release("BTC_USDT")
		return errors.New("placement failed")
	}

	require.Error(t, place())
	// the lock must not leak when placement fails
	require.False(t, g.Held("BTC_USDT"))
	require.True(t, g.TryAcquire("BTC_USDT"))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	g := New()

	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire("BTC_USDT") {
				winners.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
}
