package database

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// InfluxClient archives ticks and bars as time series. Bars written
// on every update share a timestamp per bucket, so InfluxDB keeps the
// latest state of an accumulating candle.
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	logger   *logrus.Entry
	cfg      *config.InfluxConfig
	org      string
	bucket   string
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0),
	)

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		logger:   logger.WithField("component", "influxdb"),
		cfg:      cfg,
		org:      cfg.Org,
		bucket:   cfg.Bucket,
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB health
func (ic *InfluxClient) Health(ctx context.Context) error {
	health, err := ic.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return nil
}

// Tick operations

// WriteTick archives a raw tick.
func (ic *InfluxClient) WriteTick(ctx context.Context, tick *models.Tick) error {
	if err := ic.writeAPI.WritePoint(ctx, tickPoint(tick)); err != nil {
		return fmt.Errorf("failed to write tick: %w", err)
	}
	return nil
}

// WriteTicks archives a batch of ticks in one call. The tick recorder
// uses this to keep the feed path off the wire per update.
func (ic *InfluxClient) WriteTicks(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(ticks))
	for _, tick := range ticks {
		points = append(points, tickPoint(tick))
	}

	if err := ic.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write ticks batch (%d points): %w", len(points), err)
	}

	return nil
}

func tickPoint(tick *models.Tick) *write.Point {
	return influxdb2.NewPoint(
		"ticks",
		map[string]string{
			"venue":      tick.Venue,
			"instrument": tick.Instrument,
		},
		map[string]interface{}{
			"price":  tick.Price,
			"bid":    tick.Bid,
			"ask":    tick.Ask,
			"volume": tick.Volume,
		},
		tick.Timestamp,
	)
}

// Bar operations

// WriteBar writes an OHLCV bar with whatever indicator values are set.
func (ic *InfluxClient) WriteBar(ctx context.Context, instrument, timeframe string, bar *models.Bar) error {
	if err := ic.writeAPI.WritePoint(ctx, barPoint(instrument, timeframe, bar)); err != nil {
		return fmt.Errorf("failed to write bar: %w", err)
	}
	return nil
}

// WriteBars writes a batch of bars in one call. The backfill path uses
// this for bulk history loads.
func (ic *InfluxClient) WriteBars(ctx context.Context, instrument, timeframe string, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(bars))
	for _, bar := range bars {
		points = append(points, barPoint(instrument, timeframe, bar))
	}

	if err := ic.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write bars batch (%d points): %w", len(points), err)
	}

	return nil
}

func barPoint(instrument, timeframe string, bar *models.Bar) *write.Point {
	measurement := "ohlcv"
	if timeframe != "1m" && timeframe != "" {
		measurement = fmt.Sprintf("ohlcv_%s", timeframe)
	}

	fields := map[string]interface{}{
		"open":   bar.Open,
		"high":   bar.High,
		"low":    bar.Low,
		"close":  bar.Close,
		"volume": bar.Volume,
	}
	addIndicator(fields, "ema12", bar.EMA12)
	addIndicator(fields, "ema26", bar.EMA26)
	addIndicator(fields, "ema200", bar.EMA200)
	addIndicator(fields, "macd", bar.MACD)
	addIndicator(fields, "macd_signal", bar.MACDSignal)
	addIndicator(fields, "macd_hist", bar.MACDHist)
	addIndicator(fields, "bb_upper", bar.BBUpper)
	addIndicator(fields, "bb_middle", bar.BBMiddle)
	addIndicator(fields, "bb_lower", bar.BBLower)
	addIndicator(fields, "atr", bar.ATR)
	addIndicator(fields, "adx", bar.ADX)
	addIndicator(fields, "rsi", bar.RSI)

	return influxdb2.NewPoint(
		measurement,
		map[string]string{"instrument": instrument},
		fields,
		bar.Timestamp,
	)
}

func addIndicator(fields map[string]interface{}, name string, value *float64) {
	if value != nil {
		fields[name] = *value
	}
}

// GetBars retrieves one-minute bars for the engine seed path when the
// REST history source is unavailable.
func (ic *InfluxClient) GetBars(ctx context.Context, instrument string, from, to time.Time) ([]*models.Bar, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r._measurement == "ohlcv")
			|> filter(fn: (r) => r.instrument == "%s")
			|> filter(fn: (r) => r._field == "open" or r._field == "high" or r._field == "low" or r._field == "close" or r._field == "volume")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
	`, ic.bucket, from.Format(time.RFC3339), to.Format(time.RFC3339), instrument)

	result, err := ic.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer result.Close()

	bars := make([]*models.Bar, 0)
	for result.Next() {
		record := result.Record()

		bar := &models.Bar{
			Timestamp: record.Time(),
		}
		if v, ok := record.Values()["open"].(float64); ok {
			bar.Open = v
		}
		if v, ok := record.Values()["high"].(float64); ok {
			bar.High = v
		}
		if v, ok := record.Values()["low"].(float64); ok {
			bar.Low = v
		}
		if v, ok := record.Values()["close"].(float64); ok {
			bar.Close = v
		}
		if v, ok := record.Values()["volume"].(float64); ok {
			bar.Volume = v
		}

		bars = append(bars, bar)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query error: %w", result.Err())
	}

	return bars, nil
}
