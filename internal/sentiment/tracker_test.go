package sentiment

import (
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

func event(s models.NewsSentiment, i models.NewsImpact) *models.NewsEvent {
	return &models.NewsEvent{
		Headline:  "test headline",
		Sentiment: s,
		Impact:    i,
		Timestamp: time.Now(),
	}
}

func TestImpactMagnitudes(t *testing.T) {
	cases := []struct {
		sentiment models.NewsSentiment
		impact    models.NewsImpact
		want      float64
	}{
		{models.NewsPositive, models.ImpactHigh, 25},
		{models.NewsPositive, models.ImpactMedium, 15},
		{models.NewsPositive, models.ImpactLow, 5},
		{models.NewsNegative, models.ImpactHigh, -25},
		{models.NewsNegative, models.ImpactMedium, -15},
		{models.NewsNegative, models.ImpactLow, -5},
		{models.NewsNeutral, models.ImpactHigh, 0},
	}

	for _, tc := range cases {
		tr := NewTracker(testLogger())
		tr.Apply(event(tc.sentiment, tc.impact))
		got := tr.Score()
		want := tc.want * 0.995
		if tc.want == 0 {
			want = 0
		}
		if got != want {
			t.Errorf("%s/%s: score = %v, want %v", tc.sentiment, tc.impact, got, want)
		}
	}
}

func TestClampAtBounds(t *testing.T) {
	tr := NewTracker(testLogger())
	for i := 0; i < 10; i++ {
		tr.Apply(event(models.NewsPositive, models.ImpactHigh))
	}
	if got := tr.Score(); got > 100 {
		t.Errorf("score exceeded clamp: %v", got)
	}

	tr2 := NewTracker(testLogger())
	for i := 0; i < 10; i++ {
		tr2.Apply(event(models.NewsNegative, models.ImpactHigh))
	}
	if got := tr2.Score(); got < -100 {
		t.Errorf("score exceeded negative clamp: %v", got)
	}
}

func TestDecayTowardZeroWithoutOvershoot(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Apply(event(models.NewsPositive, models.ImpactHigh))

	prev := tr.Score()
	if prev <= 0 {
		t.Fatalf("expected positive score after positive event, got %v", prev)
	}
	for i := 0; i < 2000; i++ {
		cur := tr.Score()
		if cur < 0 {
			t.Fatalf("score overshot past 0: %v", cur)
		}
		if cur > prev {
			t.Fatalf("score increased under decay: %v -> %v", prev, cur)
		}
		prev = cur
	}
	if prev != 0 {
		t.Errorf("score did not reach exactly 0 after repeated reads: %v", prev)
	}
}

func TestSnapToZeroBelowOne(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Apply(event(models.NewsNegative, models.ImpactLow))

	// -5 decays below magnitude 1 and must snap to exactly 0.
	var got float64
	for i := 0; i < 1000; i++ {
		got = tr.Score()
		if got == 0 {
			return
		}
	}
	t.Errorf("score never snapped to 0, last %v", got)
}

func TestNeutralEventLeavesScore(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Apply(event(models.NewsPositive, models.ImpactMedium))
	before := tr.Score()
	tr.Apply(event(models.NewsNeutral, models.ImpactHigh))
	after := tr.Score()
	if after > before {
		t.Errorf("neutral event raised score: %v -> %v", before, after)
	}
	if after < before*0.995-1e-9 {
		t.Errorf("neutral event changed score beyond decay: %v -> %v", before, after)
	}
}

func TestPeekDoesNotDecay(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Apply(event(models.NewsPositive, models.ImpactHigh))

	first := tr.Peek()
	second := tr.Peek()
	if first != 25 || second != 25 {
		t.Errorf("Peek = %v then %v, want 25 both times", first, second)
	}

	decayed := tr.Score()
	if decayed >= first {
		t.Errorf("Score after Peek = %v, want decayed below %v", decayed, first)
	}
	if got := tr.Peek(); got != decayed {
		t.Errorf("Peek = %v, want last decayed value %v", got, decayed)
	}
}
