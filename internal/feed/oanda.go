package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// OANDAFeed streams mid prices for one instrument from the OANDA v20
// pricing stream. Heartbeats arrive every few seconds; when they stop
// for longer than the configured stream timeout the feed reconnects
// with exponential backoff.
type OANDAFeed struct {
	cfg     *config.FeedConfig
	handler TickHandler
	logger  *logrus.Entry

	connected    atomic.Bool
	reconnecting atomic.Bool

	mu       sync.Mutex
	lastBeat time.Time
	resp     *http.Response
	done     chan struct{}
}

// oandaStreamMessage is the subset of the pricing stream payload the
// feed consumes. PRICE and HEARTBEAT share one frame shape.
type oandaStreamMessage struct {
	Type       string       `json:"type"`
	Time       time.Time    `json:"time"`
	Instrument string       `json:"instrument"`
	Status     string       `json:"status"`
	Tradeable  bool         `json:"tradeable"`
	Bids       []oandaQuote `json:"bids"`
	Asks       []oandaQuote `json:"asks"`
}

type oandaQuote struct {
	Price     string `json:"price"`
	Liquidity int    `json:"liquidity"`
}

// NewOANDAFeed creates the OANDA streaming feed.
func NewOANDAFeed(cfg *config.FeedConfig, handler TickHandler, logger *logrus.Logger) *OANDAFeed {
	return &OANDAFeed{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithField("component", "oanda-feed"),
		done:    make(chan struct{}),
	}
}

// Start opens the pricing stream and launches the reader and the
// heartbeat monitor.
func (f *OANDAFeed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return err
	}

	go f.readStream(ctx)
	go f.monitor(ctx)
	return nil
}

// Stop closes the stream and halts reconnection.
func (f *OANDAFeed) Stop() {
	f.mu.Lock()
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	if f.resp != nil {
		f.resp.Body.Close()
		f.resp = nil
	}
	f.mu.Unlock()

	f.connected.Store(false)
	f.logger.Info("Disconnected from OANDA stream")
}

// IsConnected reports whether the stream is currently open.
func (f *OANDAFeed) IsConnected() bool {
	return f.connected.Load()
}

func (f *OANDAFeed) connect(ctx context.Context) error {
	oanda := &f.cfg.OANDA
	url := fmt.Sprintf("%s/v3/accounts/%s/pricing/stream?instruments=%s",
		oanda.StreamURL, oanda.AccountID, f.cfg.Instrument)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+oanda.APIKey)
	req.Header.Set("Accept", "application/stream+json")

	// Streaming connection: no client timeout, keep-alive on.
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        1,
			MaxIdleConnsPerHost: 1,
			IdleConnTimeout:     0,
			DisableCompression:  true,
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to OANDA stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("OANDA stream returned status %d", resp.StatusCode)
	}

	f.mu.Lock()
	f.resp = resp
	f.lastBeat = time.Now()
	f.mu.Unlock()
	f.connected.Store(true)

	f.logger.WithField("instrument", f.cfg.Instrument).Info("Connected to OANDA streaming API")
	return nil
}

func (f *OANDAFeed) readStream(ctx context.Context) {
	f.mu.Lock()
	resp := f.resp
	f.mu.Unlock()
	if resp == nil {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	defer f.connected.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				f.logger.WithError(err).Error("OANDA stream read failed")
			} else {
				f.logger.Warn("OANDA stream closed by server")
			}
			select {
			case <-f.done:
			default:
				go f.reconnect(ctx)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg oandaStreamMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			f.logger.WithError(err).WithField("line", line).Warn("Failed to parse stream message")
			continue
		}

		switch msg.Type {
		case "PRICE":
			if tick := oandaTick(&msg); tick != nil {
				f.handler(tick)
			}
		case "HEARTBEAT":
			f.mu.Lock()
			f.lastBeat = time.Now()
			f.mu.Unlock()
		default:
			f.logger.WithField("type", msg.Type).Debug("Unknown stream message type")
		}
	}
}

// oandaTick converts a tradeable PRICE frame into a tick at the mid
// price. The pricing stream carries no trade size, so each update
// counts as one unit of tick volume.
func oandaTick(msg *oandaStreamMessage) *models.Tick {
	if !msg.Tradeable || msg.Status != "tradeable" {
		return nil
	}
	if len(msg.Bids) == 0 || len(msg.Asks) == 0 {
		return nil
	}

	bid, err := strconv.ParseFloat(msg.Bids[0].Price, 64)
	if err != nil {
		return nil
	}
	ask, err := strconv.ParseFloat(msg.Asks[0].Price, 64)
	if err != nil {
		return nil
	}
	if bid == 0 || ask == 0 {
		return nil
	}

	return &models.Tick{
		Instrument: msg.Instrument,
		Venue:      "oanda",
		Price:      (bid + ask) / 2,
		Bid:        bid,
		Ask:        ask,
		Volume:     1,
		Timestamp:  msg.Time,
	}
}

func (f *OANDAFeed) monitor(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.Lock()
			stale := time.Since(f.lastBeat) > f.cfg.OANDA.StreamTimeout
			f.mu.Unlock()

			if stale && f.connected.Load() {
				f.logger.WithField("timeout", f.cfg.OANDA.StreamTimeout).Warn("No heartbeat within timeout, reconnecting")
				go f.reconnect(ctx)
				return
			}
		}
	}
}

func (f *OANDAFeed) reconnect(ctx context.Context) {
	if !f.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer f.reconnecting.Store(false)

	f.connected.Store(false)
	f.mu.Lock()
	if f.resp != nil {
		f.resp.Body.Close()
		f.resp = nil
	}
	f.mu.Unlock()

	delay := f.cfg.ReconnectDelay
	for attempt := 1; attempt <= f.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-time.After(delay):
		}

		metrics.FeedReconnectsTotal.WithLabelValues("oanda").Inc()
		f.logger.WithField("attempt", attempt).Info("Reconnecting to OANDA stream")

		if err := f.connect(ctx); err != nil {
			f.logger.WithError(err).WithField("attempt", attempt).Error("Reconnection failed")
			delay = time.Duration(attempt*attempt) * f.cfg.ReconnectDelay
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			continue
		}

		go f.readStream(ctx)
		go f.monitor(ctx)
		f.logger.Info("Reconnected to OANDA stream")
		return
	}

	f.logger.Error("Failed to reconnect to OANDA after maximum attempts")
}
