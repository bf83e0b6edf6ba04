package journal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridbot/internal/domain"
)

var testPair = domain.Pair{From: "BTC", To: "USDT"}

func TestRecordAndReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := newWithDir(testPair, dir, zap.NewNop())
	require.NoError(t, err)

	order := &domain.Order{
		Symbol: testPair.Symbol(),
		ID:     "order-1",
		Side:   domain.SideBuy,
		Price:  decimal.NewFromInt(100),
		Qty:    decimal.NewFromInt(1),
		Time:   time.Now(),
	}
	require.NoError(t, j.RecordFill(order, domain.OrderStatusFilled))

	order.ID = "order-2"
	order.Side = domain.SideSell
	require.NoError(t, j.RecordFill(order, domain.OrderStatusCanceled))

	require.Len(t, j.Records(), 2)
	require.NoError(t, j.Close())

	// a fresh journal over the same directory replays the history
	replayed, err := newWithDir(testPair, dir, zap.NewNop())
	require.NoError(t, err)
	defer replayed.Close()

	records := replayed.Records()
	require.Len(t, records, 2)
	require.Equal(t, "order-1", records[0].OrderID)
	require.Equal(t, domain.OrderStatusFilled, records[0].Status)
	require.Equal(t, "order-2", records[1].OrderID)
	require.Equal(t, domain.OrderStatusCanceled, records[1].Status)
}

func TestConcurrentRecordFill(t *testing.T) {
	dir := t.TempDir()

	j, err := newWithDir(testPair, dir, zap.NewNop())
	require.NoError(t, err)

	// one writer per tracked order, the way the grid engine uses it
	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := &domain.Order{
				Symbol: testPair.Symbol(),
				ID:     fmt.Sprintf("order-%d", i),
				Side:   domain.SideBuy,
				Price:  decimal.NewFromInt(100),
				Qty:    decimal.NewFromInt(1),
				Time:   time.Now(),
			}
			errs <- j.RecordFill(order, domain.OrderStatusFilled)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, j.Records(), writers)
	require.NoError(t, j.Close())

	// every record must survive replay: duplicate WAL indexes would lose some
	replayed, err := newWithDir(testPair, dir, zap.NewNop())
	require.NoError(t, err)
	defer replayed.Close()
	require.Len(t, replayed.Records(), writers)
}

func TestEmptyJournal(t *testing.T) {
	j, err := newWithDir(testPair, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	require.Empty(t, j.Records())
}
