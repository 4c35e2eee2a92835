package market

import (
	"testing"
	"time"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func minuteBars(t0 time.Time, closes ...float64) []*models.Bar {
	bars := make([]*models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = &models.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return bars
}

func TestResampleIdentityAtBaseInterval(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bars := minuteBars(t0, 1, 2, 3)

	out := Resample(bars, time.Minute, time.Minute)
	if len(out) != len(bars) {
		t.Fatalf("length changed: %d != %d", len(out), len(bars))
	}
	for i := range bars {
		if out[i] != bars[i] {
			t.Fatalf("bar %d is not the original instance", i)
		}
	}
}

func TestResampleFiveMinuteExample(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bars := minuteBars(t0, 1, 2, 3, 4, 5)

	out := Resample(bars, 5*time.Minute, time.Minute)
	if len(out) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(out))
	}
	b := out[0]
	if b.Open != 1 || b.Close != 5 || b.High != 5 || b.Low != 1 {
		t.Errorf("OHLC = %v/%v/%v/%v, want 1/5/5/1", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume != 5 {
		t.Errorf("volume = %v, want 5", b.Volume)
	}
	if !b.Timestamp.Equal(t0) {
		t.Errorf("bucket timestamp = %s, want %s", b.Timestamp, t0)
	}
}

func TestResampleBucketsFromOriginalTimestamps(t *testing.T) {
	// Bars starting at 10:03 must split 10:03-10:04 / 10:05-10:09 on the
	// 5-minute grid, not form one bucket anchored at the first bar.
	t0 := time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC)
	bars := minuteBars(t0, 1, 2, 3, 4, 5)

	out := Resample(bars, 5*time.Minute, time.Minute)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	if got := out[0].Timestamp.Minute(); got != 0 {
		t.Errorf("first bucket starts at minute %d, want 0", got)
	}
	if got := out[1].Timestamp.Minute(); got != 5 {
		t.Errorf("second bucket starts at minute %d, want 5", got)
	}
	if out[0].Open != 1 || out[0].Close != 2 {
		t.Errorf("first bucket open/close = %v/%v, want 1/2", out[0].Open, out[0].Close)
	}
	if out[1].Open != 3 || out[1].Close != 5 {
		t.Errorf("second bucket open/close = %v/%v, want 3/5", out[1].Open, out[1].Close)
	}
}

func TestResampleOHLCAggregation(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bars := []*models.Bar{
		{Timestamp: t0, Open: 10, High: 12, Low: 9, Close: 11, Volume: 2},
		{Timestamp: t0.Add(time.Minute), Open: 11, High: 15, Low: 10, Close: 14, Volume: 3},
		{Timestamp: t0.Add(2 * time.Minute), Open: 14, High: 14, Low: 8, Close: 9, Volume: 4},
	}

	out := Resample(bars, 5*time.Minute, time.Minute)
	if len(out) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(out))
	}
	b := out[0]
	if b.Open != 10 || b.High != 15 || b.Low != 8 || b.Close != 9 || b.Volume != 9 {
		t.Errorf("unexpected bucket %+v", b)
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := Resample(nil, 5*time.Minute, time.Minute); len(out) != 0 {
		t.Fatalf("expected empty output, got %d bars", len(out))
	}
}
