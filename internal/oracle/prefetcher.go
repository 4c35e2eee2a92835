package oracle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
)

// Prefetcher refreshes the prediction in the background from the close
// window the engine pushes after each bar seal. Prediction reads are
// lock-free and go stale after MaxAge.
type Prefetcher struct {
	client     *Client
	instrument string
	windowSize int
	refresh    time.Duration
	maxAge     time.Duration
	logger     *logrus.Entry

	mu      sync.Mutex
	window  []float64
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	cached atomic.Value
}

type cachedPrediction struct {
	value float64
	at    time.Time
}

// NewPrefetcher creates a prefetcher over the given client.
func NewPrefetcher(client *Client, cfg *config.OracleConfig, instrument string, logger *logrus.Logger) *Prefetcher {
	return &Prefetcher{
		client:     client,
		instrument: instrument,
		windowSize: cfg.WindowSize,
		refresh:    cfg.RefreshInterval,
		maxAge:     cfg.MaxAge,
		logger:     logger.WithField("component", "oracle-prefetcher"),
	}
}

// Start launches the background refresh loop.
func (p *Prefetcher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("oracle prefetcher already running")
	}
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.refreshLoop(ctx)

	p.logger.WithFields(logrus.Fields{
		"window_size": p.windowSize,
		"refresh":     p.refresh,
	}).Info("Oracle prefetcher started")
	return nil
}

// Stop terminates the refresh loop and waits for it to exit.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Oracle prefetcher stopped")
}

// UpdateWindow replaces the close window used for the next refresh. The
// slice is copied; only the trailing windowSize closes are kept.
func (p *Prefetcher) UpdateWindow(closes []float64) {
	if len(closes) > p.windowSize {
		closes = closes[len(closes)-p.windowSize:]
	}
	window := make([]float64, len(closes))
	copy(window, closes)

	p.mu.Lock()
	p.window = window
	p.mu.Unlock()
}

// Prediction returns the cached prediction, reporting false when none
// has been fetched yet or the last one is older than MaxAge.
func (p *Prefetcher) Prediction() (float64, bool) {
	v := p.cached.Load()
	if v == nil {
		return 0, false
	}
	c := v.(cachedPrediction)
	if time.Since(c.at) > p.maxAge {
		return 0, false
	}
	return c.value, true
}

func (p *Prefetcher) refreshLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.refreshOnce(ctx)
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refreshOnce queries the service with the current window. Short
// windows are skipped; the model expects a fixed input length.
func (p *Prefetcher) refreshOnce(ctx context.Context) {
	p.mu.Lock()
	window := p.window
	p.mu.Unlock()

	if len(window) < p.windowSize {
		return
	}

	pred, err := p.client.Predict(ctx, p.instrument, window)
	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues("error").Inc()
		p.logger.WithError(err).Warn("Prediction refresh failed")
		return
	}
	metrics.OracleRequestsTotal.WithLabelValues("ok").Inc()

	p.cached.Store(cachedPrediction{value: pred, at: time.Now()})
	p.logger.WithField("prediction", pred).Debug("Prediction refreshed")
}
