package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	binance "github.com/binance/binance-connector-go"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// BinanceFeed streams EURUSDT trades over the official Binance
// connector and republishes them as ticks on the configured
// instrument. It is a proxy feed for environments without OANDA
// credentials; prices track EUR/USD through the stablecoin pair.
type BinanceFeed struct {
	cfg     *config.FeedConfig
	handler TickHandler
	logger  *logrus.Entry

	client *binance.WebsocketStreamClient

	connected    atomic.Bool
	reconnecting atomic.Bool

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewBinanceFeed creates the Binance trade-stream feed.
func NewBinanceFeed(cfg *config.FeedConfig, handler TickHandler, logger *logrus.Logger) *BinanceFeed {
	return &BinanceFeed{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithField("component", "binance-feed"),
		done:    make(chan struct{}),
	}
}

// Start opens the combined trade stream and launches the monitor.
func (f *BinanceFeed) Start(ctx context.Context) error {
	doneCh, err := f.connect()
	if err != nil {
		return err
	}

	go f.monitor(ctx, doneCh)
	return nil
}

// Stop closes the stream and halts reconnection.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	if f.stopCh != nil {
		select {
		case f.stopCh <- struct{}{}:
		default:
		}
		f.stopCh = nil
	}
	f.mu.Unlock()

	f.connected.Store(false)
	f.logger.Info("Disconnected from Binance stream")
}

// IsConnected reports whether the stream is currently open.
func (f *BinanceFeed) IsConnected() bool {
	return f.connected.Load()
}

func (f *BinanceFeed) connect() (chan struct{}, error) {
	f.client = binance.NewWebsocketStreamClient(true)

	tradeHandler := func(event *binance.WsCombinedTradeEvent) {
		if tick := f.tickFromTrade(event); tick != nil {
			f.handler(tick)
		}
	}
	errHandler := func(err error) {
		f.logger.WithError(err).Error("Trade stream error")
	}

	doneCh, stopCh, err := f.client.WsCombinedTradeServe([]string{f.cfg.Binance.Symbol}, tradeHandler, errHandler)
	if err != nil {
		return nil, fmt.Errorf("failed to start trade stream: %w", err)
	}

	f.mu.Lock()
	f.stopCh = stopCh
	f.mu.Unlock()
	f.connected.Store(true)

	f.logger.WithField("symbol", f.cfg.Binance.Symbol).Info("Connected to Binance trade stream")
	return doneCh, nil
}

// tickFromTrade converts a trade event. The trade stream carries no
// quote, so bid and ask mirror the trade price.
func (f *BinanceFeed) tickFromTrade(event *binance.WsCombinedTradeEvent) *models.Tick {
	if !strings.EqualFold(event.Data.Symbol, f.cfg.Binance.Symbol) {
		return nil
	}

	price, err := strconv.ParseFloat(event.Data.Price, 64)
	if err != nil || price == 0 {
		return nil
	}
	quantity, err := strconv.ParseFloat(event.Data.Quantity, 64)
	if err != nil {
		quantity = 0
	}

	return &models.Tick{
		Instrument: f.cfg.Instrument,
		Venue:      "binance",
		Price:      price,
		Bid:        price,
		Ask:        price,
		Volume:     quantity,
		Timestamp:  time.Unix(event.Data.Time/1000, (event.Data.Time%1000)*1e6),
	}
}

func (f *BinanceFeed) monitor(ctx context.Context, doneCh chan struct{}) {
	select {
	case <-ctx.Done():
		return
	case <-f.done:
		return
	case <-doneCh:
		f.logger.Warn("Binance stream closed by server")
		f.connected.Store(false)
		go f.reconnect(ctx)
	}
}

func (f *BinanceFeed) reconnect(ctx context.Context) {
	if !f.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer f.reconnecting.Store(false)

	delay := f.cfg.ReconnectDelay
	for attempt := 1; attempt <= f.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-time.After(delay):
		}

		metrics.FeedReconnectsTotal.WithLabelValues("binance").Inc()
		f.logger.WithField("attempt", attempt).Info("Reconnecting to Binance stream")

		doneCh, err := f.connect()
		if err != nil {
			f.logger.WithError(err).WithField("attempt", attempt).Error("Reconnection failed")
			delay = time.Duration(attempt*attempt) * f.cfg.ReconnectDelay
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			continue
		}

		go f.monitor(ctx, doneCh)
		f.logger.Info("Reconnected to Binance stream")
		return
	}

	f.logger.Error("Failed to reconnect to Binance after maximum attempts")
}
