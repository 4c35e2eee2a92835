package signals

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestManager() *Manager {
	return NewManager(0.85, -1, testLogger())
}

func mkSignal(id, timeframe string, dir models.Direction, entry float64, created time.Time) *models.Signal {
	return &models.Signal{
		ID:        id,
		CreatedAt: created,
		Direction: dir,
		Entry:     entry,
		Timeframe: timeframe,
		Score:     80,
		Status:    models.SignalPending,
	}
}

func TestResolveFiveMinuteCallOutcomes(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	due := created.Add(5 * time.Minute)

	tests := []struct {
		name    string
		price   float64
		want    models.SignalStatus
		wantPnL float64
	}{
		{"price above entry wins", 1.1004, models.SignalWin, 0.85},
		{"price below entry loses", 1.0996, models.SignalLoss, -1},
		{"unchanged price loses", 1.1000, models.SignalLoss, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()
			if err := m.Track(mkSignal("s1", "5m", models.DirectionCall, 1.1000, created)); err != nil {
				t.Fatalf("Track: %v", err)
			}

			settled := m.ResolveDue(due, tt.price)
			if len(settled) != 1 {
				t.Fatalf("settled %d signals, want 1", len(settled))
			}
			sig := settled[0]
			if sig.Status != tt.want {
				t.Errorf("Status = %q, want %q", sig.Status, tt.want)
			}
			if sig.PnL == nil || math.Abs(*sig.PnL-tt.wantPnL) > 1e-12 {
				t.Errorf("PnL = %v, want %v", sig.PnL, tt.wantPnL)
			}
			if sig.ExitPrice == nil || *sig.ExitPrice != tt.price {
				t.Errorf("ExitPrice = %v, want %v", sig.ExitPrice, tt.price)
			}
			if sig.ResolvedAt == nil || !sig.ResolvedAt.Equal(due) {
				t.Errorf("ResolvedAt = %v, want %v", sig.ResolvedAt, due)
			}
			if m.HasPending("5m") {
				t.Error("timeframe slot still occupied after resolution")
			}
		})
	}
}

func TestResolveWaitsForExpiry(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager()
	if err := m.Track(mkSignal("s1", "5m", models.DirectionCall, 1.1000, created)); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if settled := m.ResolveDue(created.Add(4*time.Minute+59*time.Second), 1.2000); len(settled) != 0 {
		t.Fatalf("settled %d signals before expiry, want 0", len(settled))
	}
	if !m.HasPending("5m") {
		t.Fatal("signal vanished before expiry")
	}

	if settled := m.ResolveDue(created.Add(5*time.Minute), 1.2000); len(settled) != 1 {
		t.Fatalf("settled %d signals at expiry, want 1", len(settled))
	}
}

func TestResolvePutDirection(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		price float64
		want  models.SignalStatus
	}{
		{"price below entry wins", 1.0995, models.SignalWin},
		{"price above entry loses", 1.1005, models.SignalLoss},
		{"unchanged price loses", 1.1000, models.SignalLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()
			if err := m.Track(mkSignal("p1", "1m", models.DirectionPut, 1.1000, created)); err != nil {
				t.Fatalf("Track: %v", err)
			}
			settled := m.ResolveDue(created.Add(time.Minute), tt.price)
			if len(settled) != 1 || settled[0].Status != tt.want {
				t.Errorf("settled = %+v, want status %q", settled, tt.want)
			}
		})
	}
}

func TestOnePendingPerTimeframe(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager()

	if err := m.Track(mkSignal("a", "5m", models.DirectionCall, 1.1, created)); err != nil {
		t.Fatalf("first Track: %v", err)
	}
	if err := m.Track(mkSignal("b", "5m", models.DirectionPut, 1.1, created)); err == nil {
		t.Fatal("second signal on an occupied timeframe must be rejected")
	}
	if err := m.Track(mkSignal("c", "15m", models.DirectionPut, 1.1, created)); err != nil {
		t.Fatalf("Track on a free timeframe: %v", err)
	}
	if got := m.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}

	m.ResolveDue(created.Add(5*time.Minute), 1.2)
	if err := m.Track(mkSignal("d", "5m", models.DirectionCall, 1.2, created.Add(5*time.Minute))); err != nil {
		t.Fatalf("Track after slot freed: %v", err)
	}
}

func TestResolveDueSettlesOnlyElapsed(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager()
	if err := m.Track(mkSignal("fast", "1m", models.DirectionCall, 1.1, created)); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := m.Track(mkSignal("slow", "5m", models.DirectionCall, 1.1, created)); err != nil {
		t.Fatalf("Track: %v", err)
	}

	settled := m.ResolveDue(created.Add(time.Minute), 1.2)
	if len(settled) != 1 || settled[0].ID != "fast" {
		t.Fatalf("settled = %+v, want only the 1m signal", settled)
	}
	if !m.HasPending("5m") {
		t.Fatal("5m signal settled early")
	}

	settled = m.ResolveDue(created.Add(5*time.Minute), 1.2)
	if len(settled) != 1 || settled[0].ID != "slow" {
		t.Fatalf("settled = %+v, want only the 5m signal", settled)
	}
}

func TestResolvedNewestFirstWithLimit(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager()

	for i, id := range []string{"one", "two", "three"} {
		at := created.Add(time.Duration(i) * time.Minute)
		if err := m.Track(mkSignal(id, "1m", models.DirectionCall, 1.1, at)); err != nil {
			t.Fatalf("Track %s: %v", id, err)
		}
		m.ResolveDue(at.Add(time.Minute), 1.2)
	}

	recent := m.Resolved(2)
	if len(recent) != 2 || recent[0].ID != "three" || recent[1].ID != "two" {
		t.Fatalf("Resolved(2) = %+v, want three then two", recent)
	}
	if all := m.Resolved(0); len(all) != 3 {
		t.Fatalf("Resolved(0) returned %d signals, want 3", len(all))
	}
}

func TestStatsPerTimeframeWithRollup(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager()

	run := func(tf string, dir models.Direction, entry, exit float64, at time.Time) {
		d, err := models.ParseTimeframe(tf)
		if err != nil {
			t.Fatalf("ParseTimeframe(%s): %v", tf, err)
		}
		if err := m.Track(mkSignal(tf+at.String(), tf, dir, entry, at)); err != nil {
			t.Fatalf("Track: %v", err)
		}
		m.ResolveDue(at.Add(d), exit)
	}

	run("1m", models.DirectionCall, 1.10, 1.11, created)                  // win
	run("1m", models.DirectionCall, 1.10, 1.12, created.Add(time.Minute)) // win
	run("1m", models.DirectionPut, 1.10, 1.12, created.Add(2*time.Minute)) // loss
	run("5m", models.DirectionCall, 1.10, 1.09, created)                  // loss

	stats := m.Stats()
	if len(stats) != 3 {
		t.Fatalf("Stats returned %d rows, want 3", len(stats))
	}
	oneM, fiveM, all := stats[0], stats[1], stats[2]

	if oneM.Timeframe != "1m" || oneM.Total != 3 || oneM.Wins != 2 || oneM.Losses != 1 {
		t.Errorf("1m stats = %+v", oneM)
	}
	if math.Abs(oneM.WinRate-2.0/3.0) > 1e-12 || math.Abs(oneM.NetPnL-0.7) > 1e-12 {
		t.Errorf("1m rate/pnl = %v/%v, want %v/0.7", oneM.WinRate, oneM.NetPnL, 2.0/3.0)
	}
	if fiveM.Timeframe != "5m" || fiveM.Total != 1 || fiveM.Losses != 1 {
		t.Errorf("5m stats = %+v", fiveM)
	}
	if all.Timeframe != "all" || all.Total != 4 || all.Wins != 2 || all.Losses != 2 {
		t.Errorf("rollup stats = %+v", all)
	}
	if math.Abs(all.NetPnL-(-0.3)) > 1e-12 {
		t.Errorf("rollup NetPnL = %v, want -0.3", all.NetPnL)
	}
}
