package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	binance "github.com/binance/binance-connector-go"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testFeedConfig() *config.FeedConfig {
	return &config.FeedConfig{
		Provider:             "oanda",
		Instrument:           "EUR_USD",
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 2,
		Binance:              config.BinanceConfig{Symbol: "EURUSDT"},
		OANDA: config.OANDAConfig{
			APIKey:        "test-key",
			AccountID:     "001-001-1234567-001",
			StreamTimeout: 30 * time.Second,
			RetryDelay:    time.Millisecond,
		},
	}
}

func TestNewSelectsProvider(t *testing.T) {
	handler := func(*models.Tick) {}

	cfg := testFeedConfig()
	f, err := New(cfg, handler, testLogger())
	if err != nil {
		t.Fatalf("New(oanda) returned error: %v", err)
	}
	if _, ok := f.(*OANDAFeed); !ok {
		t.Errorf("New(oanda) returned %T, want *OANDAFeed", f)
	}

	cfg.Provider = "binance"
	f, err = New(cfg, handler, testLogger())
	if err != nil {
		t.Fatalf("New(binance) returned error: %v", err)
	}
	if _, ok := f.(*BinanceFeed); !ok {
		t.Errorf("New(binance) returned %T, want *BinanceFeed", f)
	}

	cfg.Provider = "bloomberg"
	if _, err := New(cfg, handler, testLogger()); err == nil {
		t.Error("New(bloomberg) should return an error")
	}
}

func TestOANDATickConversion(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 15, 0, time.UTC)
	base := oandaStreamMessage{
		Type:       "PRICE",
		Time:       ts,
		Instrument: "EUR_USD",
		Status:     "tradeable",
		Tradeable:  true,
		Bids:       []oandaQuote{{Price: "1.08500", Liquidity: 1000000}},
		Asks:       []oandaQuote{{Price: "1.08520", Liquidity: 1000000}},
	}

	tick := oandaTick(&base)
	if tick == nil {
		t.Fatal("expected tick for tradeable price message")
	}
	if tick.Price != (1.085+1.0852)/2 {
		t.Errorf("Price = %v, want mid %v", tick.Price, (1.085+1.0852)/2)
	}
	if tick.Bid != 1.085 || tick.Ask != 1.0852 {
		t.Errorf("Bid/Ask = %v/%v, want 1.085/1.0852", tick.Bid, tick.Ask)
	}
	if tick.Venue != "oanda" {
		t.Errorf("Venue = %q, want oanda", tick.Venue)
	}
	if tick.Volume != 1 {
		t.Errorf("Volume = %v, want 1", tick.Volume)
	}
	if !tick.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", tick.Timestamp, ts)
	}
	if tick.Instrument != "EUR_USD" {
		t.Errorf("Instrument = %q, want EUR_USD", tick.Instrument)
	}

	tests := []struct {
		name   string
		mutate func(*oandaStreamMessage)
	}{
		{"not tradeable flag", func(m *oandaStreamMessage) { m.Tradeable = false }},
		{"halted status", func(m *oandaStreamMessage) { m.Status = "non-tradeable" }},
		{"no bids", func(m *oandaStreamMessage) { m.Bids = nil }},
		{"no asks", func(m *oandaStreamMessage) { m.Asks = nil }},
		{"malformed bid", func(m *oandaStreamMessage) { m.Bids = []oandaQuote{{Price: "abc"}} }},
		{"malformed ask", func(m *oandaStreamMessage) { m.Asks = []oandaQuote{{Price: ""}} }},
		{"zero bid", func(m *oandaStreamMessage) { m.Bids = []oandaQuote{{Price: "0"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := base
			tt.mutate(&msg)
			if got := oandaTick(&msg); got != nil {
				t.Errorf("oandaTick = %+v, want nil", got)
			}
		})
	}
}

const candlesFixture = `{
	"instrument": "EUR_USD",
	"granularity": "M1",
	"candles": [
		{
			"complete": true,
			"volume": 42,
			"time": "2025-06-02T14:30:00.000000000Z",
			"mid": {"o": "1.08500", "h": "1.08530", "l": "1.08490", "c": "1.08510"}
		},
		{
			"complete": true,
			"volume": 38,
			"time": "2025-06-02T14:31:00.000000000Z",
			"mid": {"o": "1.08510", "h": "1.08540", "l": "1.08500", "c": "1.08535"}
		},
		{
			"complete": false,
			"volume": 7,
			"time": "2025-06-02T14:32:00.000000000Z",
			"mid": {"o": "1.08535", "h": "1.08540", "l": "1.08530", "c": "1.08538"}
		}
	]
}`

func candleServer(t *testing.T, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/instruments/EUR_USD/candles" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", auth)
		}
		*gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candlesFixture))
	}))
}

func TestHistoryRecentBars(t *testing.T) {
	var query string
	server := candleServer(t, &query)
	defer server.Close()

	cfg := &config.OANDAConfig{APIKey: "test-key", APIURL: server.URL}
	history := NewOANDAHistory(cfg, testLogger())

	bars, err := history.RecentBars(context.Background(), "EUR_USD", 3)
	if err != nil {
		t.Fatalf("RecentBars returned error: %v", err)
	}

	for _, want := range []string{"granularity=M1", "price=M", "count=3"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}

	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2 (incomplete candle skipped)", len(bars))
	}

	first := bars[0]
	if first.Open != 1.085 || first.High != 1.0853 || first.Low != 1.0849 || first.Close != 1.0851 {
		t.Errorf("first bar OHLC = %v/%v/%v/%v", first.Open, first.High, first.Low, first.Close)
	}
	if first.Volume != 42 {
		t.Errorf("first bar Volume = %v, want 42", first.Volume)
	}
	wantTime := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	if !first.Timestamp.Equal(wantTime) {
		t.Errorf("first bar Timestamp = %v, want %v", first.Timestamp, wantTime)
	}
	if bars[1].Close != 1.08535 {
		t.Errorf("second bar Close = %v, want 1.08535", bars[1].Close)
	}
}

func TestHistoryBarsBetween(t *testing.T) {
	var query string
	server := candleServer(t, &query)
	defer server.Close()

	cfg := &config.OANDAConfig{APIKey: "test-key", APIURL: server.URL}
	history := NewOANDAHistory(cfg, testLogger())

	from := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	if _, err := history.BarsBetween(context.Background(), "EUR_USD", from, to); err != nil {
		t.Fatalf("BarsBetween returned error: %v", err)
	}

	if !strings.Contains(query, "from=2025-06-02T14%3A00%3A00Z") {
		t.Errorf("query %q missing from parameter", query)
	}
	if !strings.Contains(query, "to=2025-06-02T15%3A00%3A00Z") {
		t.Errorf("query %q missing to parameter", query)
	}
}

func TestHistoryServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorMessage":"Insufficient authorization"}`))
	}))
	defer server.Close()

	cfg := &config.OANDAConfig{APIKey: "bad-key", APIURL: server.URL}
	history := NewOANDAHistory(cfg, testLogger())

	_, err := history.RecentBars(context.Background(), "EUR_USD", 10)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should mention status 401", err)
	}
}

func TestBarFromCandle(t *testing.T) {
	incomplete := &oandaCandle{Complete: false, Mid: &oandaCandleMid{Open: "1", High: "1", Low: "1", Close: "1"}}
	if bar, err := barFromCandle(incomplete); err != nil || bar != nil {
		t.Errorf("incomplete candle: bar=%v err=%v, want nil/nil", bar, err)
	}

	noMid := &oandaCandle{Complete: true}
	if _, err := barFromCandle(noMid); err == nil {
		t.Error("candle without mid prices should error")
	}

	badOpen := &oandaCandle{Complete: true, Mid: &oandaCandleMid{Open: "x", High: "1", Low: "1", Close: "1"}}
	if _, err := barFromCandle(badOpen); err == nil {
		t.Error("candle with malformed open should error")
	}
}

func TestBinanceTickFromTrade(t *testing.T) {
	feed := NewBinanceFeed(testFeedConfig(), func(*models.Tick) {}, testLogger())

	raw := `{"stream":"eurusdt@trade","data":{"e":"trade","E":1748874615123,"s":"EURUSDT","t":12345,"p":"1.08520","q":"1250.5","m":false}}`
	var event binance.WsCombinedTradeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("failed to unmarshal trade event: %v", err)
	}

	tick := feed.tickFromTrade(&event)
	if tick == nil {
		t.Fatal("expected tick for trade event")
	}
	if tick.Price != 1.0852 {
		t.Errorf("Price = %v, want 1.0852", tick.Price)
	}
	if tick.Volume != 1250.5 {
		t.Errorf("Volume = %v, want 1250.5", tick.Volume)
	}
	if tick.Venue != "binance" {
		t.Errorf("Venue = %q, want binance", tick.Venue)
	}
	if tick.Instrument != "EUR_USD" {
		t.Errorf("Instrument = %q, want EUR_USD (configured instrument, not symbol)", tick.Instrument)
	}
	wantTime := time.Unix(1748874615, 123*1e6)
	if !tick.Timestamp.Equal(wantTime) {
		t.Errorf("Timestamp = %v, want %v", tick.Timestamp, wantTime)
	}

	otherSymbol := event
	otherSymbol.Data.Symbol = "BTCUSDT"
	if got := feed.tickFromTrade(&otherSymbol); got != nil {
		t.Errorf("tick for foreign symbol = %+v, want nil", got)
	}

	badPrice := event
	badPrice.Data.Price = "garbage"
	if got := feed.tickFromTrade(&badPrice); got != nil {
		t.Errorf("tick for malformed price = %+v, want nil", got)
	}
}
