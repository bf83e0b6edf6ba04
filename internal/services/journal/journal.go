// Package journal keeps an append-only on-disk record of terminal order
// outcomes. It is a side channel: the engine writes it for audit and startup
// stats but never reads it back for trading decisions.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
)

const (
	fillKeyPrefix       = "fill_"
	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// FillRecord one journaled terminal order outcome.
type FillRecord struct {
	OrderID string             `json:"order_id"`
	Symbol  string             `json:"symbol"`
	Side    domain.Side        `json:"side"`
	Price   decimal.Decimal    `json:"price"`
	Qty     decimal.Decimal    `json:"qty"`
	Status  domain.OrderStatus `json:"status"`
	Time    time.Time          `json:"time"`
}

// Journal writes fill records for one pair to its own WAL directory.
// Safe for concurrent use: every tracked order reports its outcome from its
// own goroutine.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	l       *zap.Logger
	records []FillRecord
}

func New(pair domain.Pair, l *zap.Logger) (*Journal, error) {
	return newWithDir(pair, filepath.Join("./wal", pair.String()), l)
}

func newWithDir(pair domain.Pair, walDir string, l *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(walDir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", walDir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              walDir,
		Prefix:           "log_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open WAL")
	}

	j := &Journal{wal: wal, l: l}
	for msg := range wal.Iterator() {
		var rec FillRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			l.Warn("skipping malformed journal record", zap.String("key", msg.Key), zap.Error(err))
			continue
		}
		j.records = append(j.records, rec)
	}

	if len(j.records) > 0 {
		l.Info("replayed fill journal",
			zap.String("pair", pair.String()),
			zap.Int("records", len(j.records)))
	}

	return j, nil
}

// RecordFill appends the terminal outcome of an order.
func (j *Journal) RecordFill(order *domain.Order, status domain.OrderStatus) error {
	rec := FillRecord{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Price:   order.Price,
		Qty:     order.Qty,
		Status:  status,
		Time:    time.Now(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal fill record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := fmt.Sprintf("%s%s", fillKeyPrefix, order.ID)
	if err := j.wal.Write(j.wal.CurrentIndex()+1, key, data); err != nil {
		return errors.Wrap(err, "failed to journal fill")
	}

	j.records = append(j.records, rec)
	return nil
}

// Records returns everything journaled so far, replayed history included.
func (j *Journal) Records() []FillRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]FillRecord, len(j.records))
	copy(out, j.records)
	return out
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
