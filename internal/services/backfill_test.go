package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/feed"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Feed:   config.FeedConfig{Instrument: "EUR_USD"},
		Engine: config.EngineConfig{SeedBars: 3},
	}
}

// candleBody fabricates an OANDA candles response with n complete
// minute candles starting at start.
func candleBody(start time.Time, n int) string {
	var sb strings.Builder
	sb.WriteString(`{"instrument":"EUR_USD","granularity":"M1","candles":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		ts := start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		sb.WriteString(fmt.Sprintf(
			`{"complete":true,"volume":10,"time":%q,"mid":{"o":"1.0850","h":"1.0852","l":"1.0849","c":"1.0851"}}`, ts))
	}
	sb.WriteString("]}")
	return sb.String()
}

func oandaStub(t *testing.T, requests *int32, barsPerRequest int) *feed.OANDAHistory {
	t.Helper()
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, candleBody(start, barsPerRequest))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.OANDAConfig{APIKey: "test-key", AccountID: "001", APIURL: srv.URL}
	return feed.NewOANDAHistory(cfg, testLogger())
}

// influxStub accepts every write so archive calls succeed.
func influxStub(t *testing.T, writes *int32) *database.InfluxClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v2/write") {
			atomic.AddInt32(writes, 1)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b", Timeout: 5 * time.Second}
	return database.NewInfluxClient(cfg, testLogger())
}

func TestSeedFromBroker(t *testing.T) {
	var requests, writes int32
	history := oandaStub(t, &requests, 3)
	influx := influxStub(t, &writes)

	b := NewBackfill(history, influx, testConfig(), testLogger())
	bars, err := b.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("seeded %d bars, want 3", len(bars))
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("broker requests = %d, want 1", got)
	}
	// Seed bars are archived for later cold starts.
	if got := atomic.LoadInt32(&writes); got != 1 {
		t.Errorf("archive writes = %d, want 1", got)
	}
}

func TestSeedColdStart(t *testing.T) {
	b := NewBackfill(nil, nil, testConfig(), testLogger())
	bars, err := b.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(bars) != 0 {
		t.Fatalf("cold start returned %d bars, want none", len(bars))
	}
}

func TestLoadRangeChunks(t *testing.T) {
	var requests, writes int32
	history := oandaStub(t, &requests, 5)
	influx := influxStub(t, &writes)

	b := NewBackfill(history, influx, testConfig(), testLogger())
	b.chunkDelay = time.Millisecond

	// Five days of minutes split into ceil(7200/2880) = 3 chunks.
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(5 * 24 * time.Hour)

	total, err := b.LoadRange(context.Background(), from, to)
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("broker requests = %d, want 3", got)
	}
	if got := atomic.LoadInt32(&writes); got != 3 {
		t.Errorf("archive writes = %d, want 3", got)
	}
	if total != 15 {
		t.Errorf("total bars = %d, want 15", total)
	}
}

func TestLoadRangeRequiresSources(t *testing.T) {
	b := NewBackfill(nil, nil, testConfig(), testLogger())
	if _, err := b.LoadRange(context.Background(), time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("LoadRange without sources must fail")
	}
}
