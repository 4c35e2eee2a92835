package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/feed"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// maxChunkBars stays under OANDA's 5000-candle cap per request.
const maxChunkBars = 2880

// Backfill loads minute-bar history: a warm seed for the engine on
// startup and bulk range loads into the archive for the backfill
// command.
type Backfill struct {
	history    *feed.OANDAHistory
	influx     *database.InfluxClient
	cfg        *config.Config
	chunkDelay time.Duration
	logger     *logrus.Entry
}

// NewBackfill creates a backfill service. history may be nil when no
// OANDA credentials are configured; Seed then falls back to the
// archive.
func NewBackfill(
	history *feed.OANDAHistory,
	influx *database.InfluxClient,
	cfg *config.Config,
	logger *logrus.Logger,
) *Backfill {
	return &Backfill{
		history:    history,
		influx:     influx,
		cfg:        cfg,
		chunkDelay: time.Second,
		logger:     logger.WithField("component", "backfill"),
	}
}

// Seed returns the most recent minute bars for engine warm-up, trying
// the broker history first and the local archive second. An empty
// result is not an error: the engine then warms up from live ticks
// alone.
func (b *Backfill) Seed(ctx context.Context) ([]*models.Bar, error) {
	instrument := b.cfg.Feed.Instrument
	count := b.cfg.Engine.SeedBars

	if b.history != nil {
		bars, err := b.history.RecentBars(ctx, instrument, count)
		if err == nil {
			b.archive(ctx, bars)
			b.logger.WithFields(logrus.Fields{
				"source": "oanda",
				"bars":   len(bars),
			}).Info("Seed history loaded")
			return bars, nil
		}
		b.logger.WithError(err).Warn("Broker history unavailable, trying archive")
	}

	if b.influx != nil {
		to := time.Now().UTC()
		from := to.Add(-time.Duration(count) * models.BaseInterval)
		bars, err := b.influx.GetBars(ctx, instrument, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to read archived bars: %w", err)
		}
		b.logger.WithFields(logrus.Fields{
			"source": "influx",
			"bars":   len(bars),
		}).Info("Seed history loaded")
		return bars, nil
	}

	b.logger.Info("No history source available, starting cold")
	return nil, nil
}

// LoadRange fetches [from, to) from the broker in chunks and writes
// each chunk to the archive. It returns the number of bars stored.
func (b *Backfill) LoadRange(ctx context.Context, from, to time.Time) (int, error) {
	if b.history == nil {
		return 0, fmt.Errorf("no broker history configured")
	}
	if b.influx == nil {
		return 0, fmt.Errorf("no archive configured")
	}

	instrument := b.cfg.Feed.Instrument
	total := 0

	for start := from; start.Before(to); {
		end := start.Add(maxChunkBars * models.BaseInterval)
		if end.After(to) {
			end = to
		}

		bars, err := b.history.BarsBetween(ctx, instrument, start, end)
		if err != nil {
			return total, fmt.Errorf("failed to fetch %s..%s: %w",
				start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		if err := b.influx.WriteBars(ctx, instrument, "1m", bars); err != nil {
			return total, fmt.Errorf("failed to archive chunk: %w", err)
		}
		total += len(bars)

		b.logger.WithFields(logrus.Fields{
			"through": end.Format(time.RFC3339),
			"bars":    total,
		}).Info("Backfill progress")

		start = end
		if !start.Before(to) {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(b.chunkDelay):
		}
	}

	return total, nil
}

// archive stores seed bars so later cold starts can seed without the
// broker. Failures are logged, not returned.
func (b *Backfill) archive(ctx context.Context, bars []*models.Bar) {
	if b.influx == nil || len(bars) == 0 {
		return
	}
	if err := b.influx.WriteBars(ctx, b.cfg.Feed.Instrument, "1m", bars); err != nil {
		b.logger.WithError(err).Warn("Failed to archive seed bars")
	}
}
