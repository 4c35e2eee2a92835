package market

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Aggregator folds a time-ordered tick stream into base-interval OHLCV
// bars. It keeps one mutable in-progress bar plus the append-only sealed
// history; sealing is the only transition between the two. The engine
// goroutine is the sole owner, so no locking happens here.
type Aggregator struct {
	interval time.Duration
	limit    int
	alignMs  int64

	history []*models.Bar
	current *barBuilder

	logger *logrus.Entry
}

// barBuilder accumulates ticks for the currently open interval
type barBuilder struct {
	bucket time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// NewAggregator creates an aggregator for the given base interval.
// History is capped at limit bars; trimming cuts on a boundary of
// alignTo so coarser resample buckets never straddle the cut.
func NewAggregator(interval time.Duration, limit int, alignTo time.Duration, logger *logrus.Logger) *Aggregator {
	if alignTo < interval {
		alignTo = interval
	}
	return &Aggregator{
		interval: interval,
		limit:    limit,
		alignMs:  alignTo.Milliseconds(),
		logger:   logger.WithField("component", "aggregator"),
	}
}

// Seed replaces the sealed history with bars loaded from an external
// source. Bars must be ordered ascending by timestamp.
func (a *Aggregator) Seed(bars []*models.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("seed bars out of order at index %d", i)
		}
	}
	a.history = append(a.history[:0:0], bars...)
	a.trim()
	a.logger.WithField("bars", len(a.history)).Info("History seeded")
	return nil
}

// Apply folds one tick into the in-progress bar. When the tick opens a
// new bucket the previous bar is sealed, appended to history and
// returned; the caller runs the analysis pipeline exactly once per
// sealed bar. Ticks older than the open bucket are rejected.
func (a *Aggregator) Apply(tick *models.Tick) (*models.Bar, error) {
	bucket := tick.Timestamp.Truncate(a.interval)

	if a.current == nil {
		a.current = newBarBuilder(bucket, tick)
		return nil, nil
	}

	if bucket.Before(a.current.bucket) {
		return nil, fmt.Errorf("tick at %s predates open bucket %s",
			tick.Timestamp.Format(time.RFC3339Nano), a.current.bucket.Format(time.RFC3339))
	}

	if bucket.Equal(a.current.bucket) {
		a.current.update(tick)
		return nil, nil
	}

	sealed := a.seal()
	a.current = newBarBuilder(bucket, tick)
	return sealed, nil
}

// seal converts the in-progress bar into an immutable history bar
func (a *Aggregator) seal() *models.Bar {
	b := a.current
	bar := &models.Bar{
		Timestamp: b.bucket,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
	}
	a.history = append(a.history, bar)
	a.current = nil
	a.trim()
	return bar
}

// trim drops the oldest bars once the cap is exceeded, cutting on an
// alignMs boundary so resampled buckets stay whole.
func (a *Aggregator) trim() {
	if a.limit <= 0 || len(a.history) <= a.limit {
		return
	}
	drop := len(a.history) - a.limit
	for drop < len(a.history) && a.history[drop].Timestamp.UnixMilli()%a.alignMs != 0 {
		drop++
	}
	a.history = append(a.history[:0:0], a.history[drop:]...)
}

// History returns the sealed bars. The slice is owned by the
// aggregator; callers must not mutate or retain it across Apply calls.
func (a *Aggregator) History() []*models.Bar {
	return a.history
}

// Len returns the number of sealed bars.
func (a *Aggregator) Len() int {
	return len(a.history)
}

// LastClose returns the most recent known price: the in-progress bar's
// close when one is open, otherwise the last sealed close.
func (a *Aggregator) LastClose() (float64, bool) {
	if a.current != nil {
		return a.current.close, true
	}
	if n := len(a.history); n > 0 {
		return a.history[n-1].Close, true
	}
	return 0, false
}

// Current returns a snapshot of the in-progress bar, or nil when no
// tick has arrived for the open interval yet.
func (a *Aggregator) Current() *models.Bar {
	if a.current == nil {
		return nil
	}
	return &models.Bar{
		Timestamp: a.current.bucket,
		Open:      a.current.open,
		High:      a.current.high,
		Low:       a.current.low,
		Close:     a.current.close,
		Volume:    a.current.volume,
	}
}

func newBarBuilder(bucket time.Time, tick *models.Tick) *barBuilder {
	return &barBuilder{
		bucket: bucket,
		open:   tick.Price,
		high:   tick.Price,
		low:    tick.Price,
		close:  tick.Price,
		volume: tick.Volume,
	}
}

func (b *barBuilder) update(tick *models.Tick) {
	if tick.Price > b.high {
		b.high = tick.Price
	}
	if tick.Price < b.low {
		b.low = tick.Price
	}
	b.close = tick.Price
	b.volume += tick.Volume
}
