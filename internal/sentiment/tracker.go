// Package sentiment maintains the process-wide news sentiment scalar.
// The value is owned by a single Tracker instance passed to whoever
// needs it; there is no package-level state.
package sentiment

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

const (
	decayFactor = 0.995
	snapEpsilon = 1.0
	maxScore    = 100.0

	impactHighMagnitude   = 25.0
	impactMediumMagnitude = 15.0
	impactLowMagnitude    = 5.0
)

// Tracker holds one decaying sentiment scalar in [-100, 100]. Reads
// decay the value multiplicatively; writes happen only on discrete
// news events.
type Tracker struct {
	mu     sync.Mutex
	score  float64
	logger *logrus.Entry
}

// NewTracker creates an empty tracker
func NewTracker(logger *logrus.Logger) *Tracker {
	return &Tracker{
		logger: logger.WithField("component", "sentiment"),
	}
}

// Apply folds one news event into the score: a signed magnitude per
// impact tier, clamped to [-100, 100]. Neutral events leave the score
// untouched.
func (t *Tracker) Apply(ev *models.NewsEvent) {
	magnitude := impactMagnitude(ev.Impact)

	var delta float64
	switch ev.Sentiment {
	case models.NewsPositive:
		delta = magnitude
	case models.NewsNegative:
		delta = -magnitude
	default:
		// Neutral carries no direction.
	}

	t.mu.Lock()
	t.score = clamp(t.score+delta, -maxScore, maxScore)
	score := t.score
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"headline":  ev.Headline,
		"sentiment": ev.Sentiment,
		"impact":    ev.Impact,
		"score":     score,
	}).Info("News event applied")
}

// Score returns the current sentiment after applying one decay step.
// Decay is read-triggered, not timed; once the magnitude falls below 1
// the score snaps to exactly 0.
func (t *Tracker) Score() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.score *= decayFactor
	if math.Abs(t.score) < snapEpsilon {
		t.score = 0
	}
	return t.score
}

// Peek returns the current sentiment without decaying it. Dashboards
// and cache mirrors use this; the scoring path goes through Score.
func (t *Tracker) Peek() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.score
}

func impactMagnitude(impact models.NewsImpact) float64 {
	switch impact {
	case models.ImpactHigh:
		return impactHighMagnitude
	case models.ImpactMedium:
		return impactMediumMagnitude
	case models.ImpactLow:
		return impactLowMagnitude
	default:
		return impactLowMagnitude
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
