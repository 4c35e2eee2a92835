// Package engine runs the analysis loop: it folds ticks into bars,
// annotates and resamples the series, scores every timeframe on each
// bar close and settles pending signals.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/indicator"
	"github.com/anveerz/eur-usd-trading-bot/internal/market"
	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/internal/oracle"
	"github.com/anveerz/eur-usd-trading-bot/internal/sentiment"
	"github.com/anveerz/eur-usd-trading-bot/internal/signals"
	"github.com/anveerz/eur-usd-trading-bot/internal/strategy"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Engine owns the aggregator and drives scoring from a single
// goroutine, so the analysis path needs no locking. Ticks and news
// enter through blocking submits; results leave through the buffered
// event channel.
type Engine struct {
	cfg        *config.EngineConfig
	instrument string
	timeframes []string
	intervals  []time.Duration

	agg      *market.Aggregator
	scorer   *strategy.Scorer
	tracker  *sentiment.Tracker
	manager  *signals.Manager
	prefetch *oracle.Prefetcher

	ticks  chan *models.Tick
	news   chan *models.NewsEvent
	events chan Event

	lastPrice float64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	logger *logrus.Entry
}

// New creates an engine for one instrument. prefetch may be nil when no
// prediction service is configured.
func New(
	cfg *config.EngineConfig,
	instrument string,
	scorer *strategy.Scorer,
	tracker *sentiment.Tracker,
	manager *signals.Manager,
	prefetch *oracle.Prefetcher,
	logger *logrus.Logger,
) (*Engine, error) {
	if err := models.ValidateTimeframes(cfg.Timeframes); err != nil {
		return nil, fmt.Errorf("invalid timeframes: %w", err)
	}

	intervals := make([]time.Duration, len(cfg.Timeframes))
	largest := models.BaseInterval
	for i, tf := range cfg.Timeframes {
		d, _ := models.ParseTimeframe(tf)
		intervals[i] = d
		if d > largest {
			largest = d
		}
	}

	return &Engine{
		cfg:        cfg,
		instrument: instrument,
		timeframes: cfg.Timeframes,
		intervals:  intervals,
		agg:        market.NewAggregator(models.BaseInterval, cfg.HistoryLimit, largest, logger),
		scorer:     scorer,
		tracker:    tracker,
		manager:    manager,
		prefetch:   prefetch,
		ticks:      make(chan *models.Tick, cfg.TickQueueSize),
		news:       make(chan *models.NewsEvent, 16),
		events:     make(chan Event, cfg.EventQueueSize),
		done:       make(chan struct{}),
		logger:     logger.WithField("component", "engine"),
	}, nil
}

// Seed loads historical bars before Start so indicators have warm
// history from the first live tick.
func (e *Engine) Seed(bars []*models.Bar) error {
	if err := e.agg.Seed(bars); err != nil {
		return fmt.Errorf("failed to seed history: %w", err)
	}
	if e.prefetch != nil {
		e.prefetch.UpdateWindow(closes(e.agg.History()))
	}
	return nil
}

// Start launches the analysis loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.WithFields(logrus.Fields{
		"instrument": e.instrument,
		"timeframes": e.timeframes,
		"seeded":     e.agg.Len(),
	}).Info("Engine started")
	return nil
}

// Stop terminates the loop, waits for it and closes the event channel
// so consumers drain and exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()
	close(e.events)
	e.logger.Info("Engine stopped")
}

// SubmitTick enqueues a tick for processing. It blocks when the queue
// is full rather than dropping, and returns false once the engine is
// shutting down.
func (e *Engine) SubmitTick(tick *models.Tick) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.ticks <- tick:
		return true
	case <-e.done:
		return false
	}
}

// SubmitNews enqueues a news event for the sentiment tracker.
func (e *Engine) SubmitNews(ev *models.NewsEvent) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.news <- ev:
		return true
	case <-e.done:
		return false
	}
}

// Events returns the output stream. It is closed by Stop.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Manager exposes the signal lifecycle state for API reads.
func (e *Engine) Manager() *signals.Manager {
	return e.manager
}

// Tracker exposes the sentiment state for API reads.
func (e *Engine) Tracker() *sentiment.Tracker {
	return e.tracker
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	resolution := time.NewTicker(e.cfg.ResolutionInterval)
	defer resolution.Stop()

	for {
		select {
		case tick := <-e.ticks:
			e.handleTick(tick)
		case ev := <-e.news:
			e.handleNews(ev)
		case <-resolution.C:
			e.resolveDue(time.Now())
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleTick(tick *models.Tick) {
	metrics.TicksTotal.WithLabelValues(tick.Venue).Inc()
	metrics.QueueDepth.WithLabelValues("ticks").Set(float64(len(e.ticks)))

	sealed, err := e.agg.Apply(tick)
	if err != nil {
		metrics.TicksRejectedTotal.Inc()
		e.logger.WithError(err).Debug("Tick rejected")
		return
	}
	e.lastPrice = tick.Price
	if sealed != nil {
		metrics.BarsSealedTotal.Inc()
		e.runAnalysis(time.Now())
	}
}

func (e *Engine) handleNews(ev *models.NewsEvent) {
	e.tracker.Apply(ev)
	metrics.NewsEventsTotal.WithLabelValues(string(ev.Sentiment)).Inc()

	score := e.tracker.Peek()
	metrics.SentimentScore.Set(score)
	e.emit(Event{Type: EventSentimentUpdate, Sentiment: score, At: time.Now()})
}

// runAnalysis runs once per sealed base bar: annotate the base series,
// then resample, annotate and score every configured timeframe.
func (e *Engine) runAnalysis(now time.Time) {
	history := e.agg.History()
	indicator.Annotate(history)

	if e.prefetch != nil {
		e.prefetch.UpdateWindow(closes(history))
	}

	sealedEnd := history[len(history)-1].Timestamp.Add(models.BaseInterval)
	for i, tf := range e.timeframes {
		series := market.Resample(history, e.intervals[i], models.BaseInterval)
		if e.intervals[i] != models.BaseInterval {
			indicator.Annotate(series)
		}
		e.emitSeries(tf, e.intervals[i], sealedEnd, series, now)
		e.score(tf, series, now)
	}

	score := e.tracker.Peek()
	metrics.SentimentScore.Set(score)
	e.emit(Event{Type: EventSentimentUpdate, Sentiment: score, At: now})
}

func (e *Engine) score(tf string, series []*models.Bar, now time.Time) {
	// One pending signal per timeframe; scoring resumes after it
	// resolves.
	if e.manager.HasPending(tf) {
		return
	}

	ev := e.scorer.Evaluate(series, tf, now)
	metrics.SignalScore.WithLabelValues(tf, "call").Set(ev.CallScore)
	metrics.SignalScore.WithLabelValues(tf, "put").Set(ev.PutScore)

	sig := ev.Signal
	if sig == nil {
		return
	}
	if sig.Tier == models.TierWeak {
		e.logger.WithFields(logrus.Fields{
			"timeframe": tf,
			"direction": sig.Direction,
			"score":     sig.Score,
		}).Debug("Weak signal filtered")
		return
	}

	if err := e.manager.Track(sig); err != nil {
		e.logger.WithError(err).Warn("Failed to track signal")
		return
	}
	metrics.SignalsCreatedTotal.WithLabelValues(tf, string(sig.Direction)).Inc()
	metrics.PendingSignals.Set(float64(e.manager.PendingCount()))

	created := *sig
	e.emit(Event{Type: EventSignalCreated, Timeframe: tf, Signal: &created, At: now})
}

func (e *Engine) resolveDue(now time.Time) {
	price := e.lastPrice
	if price == 0 {
		p, ok := e.agg.LastClose()
		if !ok {
			return
		}
		price = p
	}

	settled := e.manager.ResolveDue(now, price)
	if len(settled) == 0 {
		return
	}
	metrics.PendingSignals.Set(float64(e.manager.PendingCount()))

	for i := range settled {
		sig := settled[i]
		metrics.SignalsResolvedTotal.WithLabelValues(sig.Timeframe, string(sig.Status)).Inc()
		e.emit(Event{Type: EventSignalResolved, Timeframe: sig.Timeframe, Signal: &sig, At: now})
	}
}

// emitSeries publishes the annotated tail of one timeframe: the latest
// bar for streams and the trailing window for cache mirrors. sealedEnd
// is the end of the base bar that triggered this analysis pass; a
// coarse bucket is closed once it ends at or before that instant.
func (e *Engine) emitSeries(tf string, interval time.Duration, sealedEnd time.Time, series []*models.Bar, now time.Time) {
	n := len(series)
	if n == 0 {
		return
	}
	limit := e.cfg.CacheBars
	if limit <= 0 || limit > n {
		limit = n
	}

	tail := make([]models.Bar, limit)
	for i := 0; i < limit; i++ {
		tail[i] = *series[n-limit+i]
	}
	last := tail[limit-1]
	closed := !last.Timestamp.Add(interval).After(sealedEnd)

	e.emit(Event{Type: EventBarUpdated, Timeframe: tf, Bar: &last, Closed: closed, At: now})
	e.emit(Event{Type: EventSeriesUpdated, Timeframe: tf, Series: tail, At: now})
}

// emit blocks rather than dropping so downstream sinks stay complete;
// backpressure propagates to the tick queue.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func closes(bars []*models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
