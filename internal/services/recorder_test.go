package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func testTick(offset time.Duration) *models.Tick {
	return &models.Tick{
		Instrument: "EUR_USD",
		Venue:      "oanda",
		Price:      1.0851,
		Bid:        1.0850,
		Ask:        1.0852,
		Timestamp:  time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC).Add(offset),
	}
}

func TestRecorderFlushesOnStop(t *testing.T) {
	var writes int32
	recorder := NewTickRecorder(influxStub(t, &writes), testLogger())
	recorder.Start()

	for i := 0; i < 5; i++ {
		recorder.Record(testTick(time.Duration(i) * time.Second))
	}
	if got := atomic.LoadInt32(&writes); got != 0 {
		t.Fatalf("expected buffered ticks to stay in memory, got %d writes", got)
	}

	recorder.Stop()
	if got := atomic.LoadInt32(&writes); got != 1 {
		t.Fatalf("expected one final flush on stop, got %d writes", got)
	}
}

func TestRecorderFlushesFullBatch(t *testing.T) {
	var writes int32
	recorder := NewTickRecorder(influxStub(t, &writes), testLogger())
	recorder.Start()
	defer recorder.Stop()

	for i := 0; i < recorder.batchSize; i++ {
		recorder.Record(testTick(time.Duration(i) * time.Millisecond))
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&writes) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("batch flush never reached the archive")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecorderStopWithEmptyBuffer(t *testing.T) {
	var writes int32
	recorder := NewTickRecorder(influxStub(t, &writes), testLogger())
	recorder.Start()
	recorder.Stop()

	if got := atomic.LoadInt32(&writes); got != 0 {
		t.Fatalf("expected no writes for an empty buffer, got %d", got)
	}
}
