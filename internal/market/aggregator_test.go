package market

import (
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func tickAt(ts time.Time, price float64) *models.Tick {
	return &models.Tick{Instrument: "EUR_USD", Price: price, Timestamp: ts}
}

func TestAggregatorSealsOnBucketRoll(t *testing.T) {
	agg := NewAggregator(time.Minute, 100, time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	prices := []float64{1.1000, 1.1012, 1.0995, 1.1004}
	for i, p := range prices {
		sealed, err := agg.Apply(tickAt(t0.Add(time.Duration(i*10)*time.Second), p))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sealed != nil {
			t.Fatalf("bar sealed before bucket rolled")
		}
	}

	sealed, err := agg.Apply(tickAt(t0.Add(time.Minute), 1.1020))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sealed == nil {
		t.Fatalf("expected sealed bar on bucket roll")
	}
	if !sealed.Timestamp.Equal(t0) {
		t.Errorf("sealed timestamp = %s, want %s", sealed.Timestamp, t0)
	}
	if sealed.Open != 1.1000 || sealed.Close != 1.1004 {
		t.Errorf("open/close = %v/%v, want 1.1000/1.1004", sealed.Open, sealed.Close)
	}
	if sealed.High != 1.1012 || sealed.Low != 1.0995 {
		t.Errorf("high/low = %v/%v, want 1.1012/1.0995", sealed.High, sealed.Low)
	}
	if agg.Len() != 1 {
		t.Errorf("history length = %d, want 1", agg.Len())
	}
}

func TestAggregatorRejectsStaleTicks(t *testing.T) {
	agg := NewAggregator(time.Minute, 100, time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)

	if _, err := agg.Apply(tickAt(t0, 1.1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := agg.Apply(tickAt(t0.Add(-time.Minute), 1.2)); err == nil {
		t.Fatalf("expected rejection of tick older than open bucket")
	}

	// The open bar must be untouched by the rejected tick.
	cur := agg.Current()
	if cur == nil || cur.High != 1.1 || cur.Low != 1.1 {
		t.Errorf("in-progress bar corrupted by rejected tick: %+v", cur)
	}

	// A tick inside the same bucket is still fine after a rejection.
	if _, err := agg.Apply(tickAt(t0.Add(30*time.Second), 1.15)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAggregatorBarBoundsInvariant(t *testing.T) {
	agg := NewAggregator(time.Minute, 1000, time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rng := rand.New(rand.NewSource(42))
	ts := t0
	price := 1.10
	var sealedBars []*models.Bar
	for i := 0; i < 5000; i++ {
		price += (rng.Float64() - 0.5) * 0.0004
		ts = ts.Add(time.Duration(1+rng.Intn(20)) * time.Second)
		sealed, err := agg.Apply(tickAt(ts, price))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sealed != nil {
			sealedBars = append(sealedBars, sealed)
		}
	}

	if len(sealedBars) == 0 {
		t.Fatalf("no bars sealed")
	}
	for i, b := range sealedBars {
		if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close || b.Low > b.High {
			t.Fatalf("bar %d violates OHLC bounds: %+v", i, b)
		}
		if i > 0 && !b.Timestamp.After(sealedBars[i-1].Timestamp) {
			t.Fatalf("bar %d timestamp not increasing", i)
		}
	}
}

func TestAggregatorVolumeAccumulates(t *testing.T) {
	agg := NewAggregator(time.Minute, 100, time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	agg.Apply(&models.Tick{Price: 1.1, Volume: 2, Timestamp: t0})
	agg.Apply(&models.Tick{Price: 1.2, Volume: 3, Timestamp: t0.Add(20 * time.Second)})
	sealed, _ := agg.Apply(&models.Tick{Price: 1.3, Volume: 1, Timestamp: t0.Add(time.Minute)})

	if sealed == nil {
		t.Fatalf("expected sealed bar")
	}
	if sealed.Volume != 5 {
		t.Errorf("volume = %v, want 5", sealed.Volume)
	}
}

func TestAggregatorTrimAlignsToBoundary(t *testing.T) {
	// Cap at 7 bars with 5-minute alignment: after trimming, the first
	// remaining bar must sit on a 5-minute boundary.
	agg := NewAggregator(time.Minute, 7, 5*time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i <= 12; i++ {
		agg.Apply(tickAt(t0.Add(time.Duration(i)*time.Minute), 1.1))
	}

	history := agg.History()
	if len(history) > 7 {
		t.Fatalf("history length %d exceeds cap", len(history))
	}
	firstMs := history[0].Timestamp.UnixMilli()
	if firstMs%(5*time.Minute).Milliseconds() != 0 {
		t.Errorf("trim cut off-boundary: first bar at %s", history[0].Timestamp)
	}
}

func TestAggregatorSeed(t *testing.T) {
	agg := NewAggregator(time.Minute, 100, time.Minute, testLogger())
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bars := []*models.Bar{
		{Timestamp: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Timestamp: t0.Add(time.Minute), Open: 1.5, High: 1.8, Low: 1.2, Close: 1.6},
	}
	if err := agg.Seed(bars); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if agg.Len() != 2 {
		t.Errorf("history length = %d, want 2", agg.Len())
	}
	if close, ok := agg.LastClose(); !ok || close != 1.6 {
		t.Errorf("last close = %v, want 1.6", close)
	}

	out := []*models.Bar{
		{Timestamp: t0.Add(time.Minute)},
		{Timestamp: t0},
	}
	if err := agg.Seed(out); err == nil {
		t.Fatalf("expected error for out-of-order seed bars")
	}
}
