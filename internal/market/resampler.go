package market

import (
	"time"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Resample merges base-interval bars into coarser buckets of the given
// interval. Buckets are derived from the original timestamps
// (floor(unixMilli/intervalMs)*intervalMs), never from already
// aggregated ones, so boundaries cannot drift. Bars must be ordered
// ascending. Resampling at the base interval returns the input
// unchanged.
func Resample(bars []*models.Bar, interval, base time.Duration) []*models.Bar {
	if interval == base {
		return bars
	}
	if len(bars) == 0 {
		return nil
	}

	intervalMs := interval.Milliseconds()
	out := make([]*models.Bar, 0, len(bars)/int(interval/base)+1)

	var cur *models.Bar
	curBucket := int64(-1)

	for _, b := range bars {
		bucket := b.Timestamp.UnixMilli() / intervalMs * intervalMs
		if cur == nil || bucket != curBucket {
			cur = &models.Bar{
				Timestamp: time.UnixMilli(bucket).UTC(),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
			out = append(out, cur)
			curBucket = bucket
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}

	return out
}
