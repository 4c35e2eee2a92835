package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// OANDAHistory fetches completed one-minute candles from the OANDA
// v20 REST API. It backfills the aggregator so indicators have
// history before the first live tick arrives.
type OANDAHistory struct {
	cfg        *config.OANDAConfig
	httpClient *http.Client
	logger     *logrus.Entry
}

type oandaCandlesResponse struct {
	Instrument  string        `json:"instrument"`
	Granularity string        `json:"granularity"`
	Candles     []oandaCandle `json:"candles"`
}

type oandaCandle struct {
	Complete bool            `json:"complete"`
	Volume   int             `json:"volume"`
	Time     time.Time       `json:"time"`
	Mid      *oandaCandleMid `json:"mid"`
}

type oandaCandleMid struct {
	Open  string `json:"o"`
	High  string `json:"h"`
	Low   string `json:"l"`
	Close string `json:"c"`
}

// NewOANDAHistory creates the candle history client.
func NewOANDAHistory(cfg *config.OANDAConfig, logger *logrus.Logger) *OANDAHistory {
	return &OANDAHistory{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.WithField("component", "oanda-history"),
	}
}

// RecentBars returns the most recent count completed one-minute bars.
func (h *OANDAHistory) RecentBars(ctx context.Context, instrument string, count int) ([]*models.Bar, error) {
	params := url.Values{}
	params.Set("granularity", "M1")
	params.Set("price", "M")
	params.Set("count", strconv.Itoa(count))
	return h.getCandles(ctx, instrument, params)
}

// BarsBetween returns completed one-minute bars in [from, to).
func (h *OANDAHistory) BarsBetween(ctx context.Context, instrument string, from, to time.Time) ([]*models.Bar, error) {
	params := url.Values{}
	params.Set("granularity", "M1")
	params.Set("price", "M")
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	return h.getCandles(ctx, instrument, params)
}

func (h *OANDAHistory) getCandles(ctx context.Context, instrument string, params url.Values) ([]*models.Bar, error) {
	endpoint := fmt.Sprintf("%s/v3/instruments/%s/candles?%s", h.cfg.APIURL, instrument, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OANDA API error %d: %s", resp.StatusCode, string(body))
	}

	var candles oandaCandlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&candles); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	bars := make([]*models.Bar, 0, len(candles.Candles))
	for i := range candles.Candles {
		bar, err := barFromCandle(&candles.Candles[i])
		if err != nil {
			h.logger.WithError(err).WithField("time", candles.Candles[i].Time).Warn("Skipping malformed candle")
			continue
		}
		if bar != nil {
			bars = append(bars, bar)
		}
	}

	h.logger.WithFields(logrus.Fields{
		"instrument": instrument,
		"bars":       len(bars),
	}).Debug("Fetched candle history")

	return bars, nil
}

// barFromCandle converts a completed mid candle. Incomplete candles
// return nil so the live aggregator owns the current minute.
func barFromCandle(c *oandaCandle) (*models.Bar, error) {
	if !c.Complete {
		return nil, nil
	}
	if c.Mid == nil {
		return nil, fmt.Errorf("candle has no mid prices")
	}

	open, err := strconv.ParseFloat(c.Mid.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid open price %q: %w", c.Mid.Open, err)
	}
	high, err := strconv.ParseFloat(c.Mid.High, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid high price %q: %w", c.Mid.High, err)
	}
	low, err := strconv.ParseFloat(c.Mid.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid low price %q: %w", c.Mid.Low, err)
	}
	closePrice, err := strconv.ParseFloat(c.Mid.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid close price %q: %w", c.Mid.Close, err)
	}

	return &models.Bar{
		Timestamp: c.Time.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    float64(c.Volume),
	}, nil
}
