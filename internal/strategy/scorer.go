// Package strategy turns an indicator-annotated bar series into scored
// directional signal candidates.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/indicator"
	"github.com/anveerz/eur-usd-trading-bot/internal/sentiment"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Point weights for the two scoring strategies
const (
	macdCrossPoints    = 25.0
	midBandCrossPoints = 20.0
	rsiModeratePoints  = 10.0
	macdHistPoints     = 5.0

	bandBreachPoints    = 30.0
	rsiExtremePoints    = 20.0
	reversalCrossPoints = 10.0

	sentimentMaxPoints  = 30.0
	predictionMaxPoints = 100.0
)

// Regime and contribution thresholds
const (
	trendADX              = 25.0
	choppyADX             = 20.0
	reversionADX          = 30.0
	newsOverrideMagnitude = 5.0

	rsiOverbought = 70.0
	rsiOversold   = 30.0
	rsiMidline    = 50.0

	predictionThresholdPct = 0.0005
	confidenceDivisor      = 150.0
	maxConfidence          = 0.99
)

// Oracle supplies an optional externally predicted next close. It must
// never block; implementations return their latest cached value.
type Oracle interface {
	Prediction() (float64, bool)
}

// Scorer evaluates one timeframe's annotated bars per bar close. Both
// strategies contribute additively to the same two scores; in the ADX
// 25-30 band they deliberately overlap.
type Scorer struct {
	threshold float64
	sentiment *sentiment.Tracker
	oracle    Oracle
	newID     func() string
	logger    *logrus.Entry
}

// Evaluation is the outcome of scoring one timeframe on one bar close
type Evaluation struct {
	Timeframe string
	Regime    string
	CallScore float64
	PutScore  float64
	Signal    *models.Signal
}

// sideScore tracks one direction's points by contributing strategy
type sideScore struct {
	trend     float64
	reversion float64
	extra     float64
}

func (s sideScore) total() float64 {
	return s.trend + s.reversion + s.extra
}

// NewScorer creates a scorer. The oracle may be nil when no prediction
// service is configured.
func NewScorer(threshold float64, tracker *sentiment.Tracker, oracle Oracle, logger *logrus.Logger) *Scorer {
	return &Scorer{
		threshold: threshold,
		sentiment: tracker,
		oracle:    oracle,
		newID:     uuid.NewString,
		logger:    logger.WithField("component", "scorer"),
	}
}

// SetIDGenerator overrides the signal ID source so scenario replays
// are reproducible.
func (s *Scorer) SetIDGenerator(fn func() string) {
	s.newID = fn
}

// Evaluate scores the series for one timeframe. It requires at least
// 30 bars with MACD, Bollinger, ADX and RSI populated on the last two;
// otherwise it reports an insufficient-data regime and no signal.
func (s *Scorer) Evaluate(bars []*models.Bar, timeframe string, now time.Time) *Evaluation {
	ev := &Evaluation{Timeframe: timeframe, Regime: models.RegimeInsufficientData}

	n := len(bars)
	if n < indicator.MinScoringBars {
		return ev
	}
	last, prev := bars[n-1], bars[n-2]
	if !scoringReady(last) || !scoringReady(prev) {
		return ev
	}

	adx := *last.ADX
	rsi := *last.RSI
	sent := s.sentiment.Score()

	ev.Regime = classifyRegime(adx, last, sent)

	var call, put sideScore

	bullCross := *prev.MACD <= *prev.MACDSignal && *last.MACD > *last.MACDSignal
	bearCross := *prev.MACD >= *prev.MACDSignal && *last.MACD < *last.MACDSignal

	// Trend strategy
	if adx > trendADX {
		if bullCross {
			call.trend += macdCrossPoints
		}
		if bearCross {
			put.trend += macdCrossPoints
		}
		if prev.Close <= *prev.BBMiddle && last.Close > *last.BBMiddle {
			call.trend += midBandCrossPoints
		}
		if prev.Close >= *prev.BBMiddle && last.Close < *last.BBMiddle {
			put.trend += midBandCrossPoints
		}
		if rsi > rsiMidline && rsi < rsiOverbought {
			call.trend += rsiModeratePoints
		}
		if rsi > rsiOversold && rsi < rsiMidline {
			put.trend += rsiModeratePoints
		}
		if *last.MACDHist > *prev.MACDHist && last.Close > prev.Close {
			call.trend += macdHistPoints
		}
		if *last.MACDHist < *prev.MACDHist && last.Close < prev.Close {
			put.trend += macdHistPoints
		}
	}

	// Mean-reversion strategy, overlapping the trend regime up to ADX 30
	if adx <= reversionADX {
		if last.Close < *last.BBLower {
			call.reversion += bandBreachPoints
		}
		if last.Close > *last.BBUpper {
			put.reversion += bandBreachPoints
		}
		if rsi <= rsiOversold {
			call.reversion += rsiExtremePoints
		}
		if rsi >= rsiOverbought {
			put.reversion += rsiExtremePoints
		}
		if bullCross {
			call.reversion += reversalCrossPoints
		}
		if bearCross {
			put.reversion += reversalCrossPoints
		}
	}

	// Sentiment contributes to the side matching its sign
	if sent > 0 {
		call.extra += math.Min(sent, 100) / 100 * sentimentMaxPoints
	} else if sent < 0 {
		put.extra += math.Min(-sent, 100) / 100 * sentimentMaxPoints
	}

	// External prediction, scaled by divergence against a 0.05%
	// threshold and capped at twice that
	var prediction *float64
	if s.oracle != nil {
		if pred, ok := s.oracle.Prediction(); ok {
			prediction = models.Float64Ptr(pred)
			diff := pred - last.Close
			thr := last.Close * predictionThresholdPct
			if thr > 0 && diff != 0 {
				pts := predictionMaxPoints * math.Min(math.Abs(diff), 2*thr) / (2 * thr)
				if diff > 0 {
					call.extra += pts
				} else {
					put.extra += pts
				}
			}
		}
	}

	ev.CallScore = call.total()
	ev.PutScore = put.total()

	var direction models.Direction
	var winner sideScore
	var score float64
	switch {
	case ev.CallScore >= s.threshold && ev.CallScore > ev.PutScore:
		direction, winner, score = models.DirectionCall, call, ev.CallScore
	case ev.PutScore >= s.threshold && ev.PutScore > ev.CallScore:
		direction, winner, score = models.DirectionPut, put, ev.PutScore
	default:
		return ev
	}

	ev.Signal = &models.Signal{
		ID:            s.newID(),
		CreatedAt:     now,
		Direction:     direction,
		Entry:         last.Close,
		Timeframe:     timeframe,
		Regime:        ev.Regime,
		Strategy:      strategyLabel(winner),
		Score:         score,
		Prediction:    prediction,
		Confidence:    math.Min(score/confidenceDivisor, maxConfidence),
		Tier:          models.TierForScore(score),
		SentimentNote: sentimentNote(sent),
		Status:        models.SignalPending,
	}

	s.logger.WithFields(logrus.Fields{
		"timeframe": timeframe,
		"direction": direction,
		"score":     score,
		"regime":    ev.Regime,
		"tier":      ev.Signal.Tier,
	}).Debug("Signal candidate scored")

	return ev
}

// classifyRegime labels the market state from ADX and the long EMA,
// overridden by strong news sentiment in either direction.
func classifyRegime(adx float64, last *models.Bar, sent float64) string {
	var regime string
	switch {
	case adx > trendADX:
		if last.Close > *last.EMA200 {
			regime = models.RegimeStrongBullTrend
		} else {
			regime = models.RegimeStrongBearTrend
		}
	case adx < choppyADX:
		regime = models.RegimeChoppySideways
	default:
		regime = models.RegimeRanging
	}

	if sent > newsOverrideMagnitude {
		regime = models.RegimeNewsBullish
	} else if sent < -newsOverrideMagnitude {
		regime = models.RegimeNewsBearish
	}
	return regime
}

func strategyLabel(w sideScore) string {
	switch {
	case w.trend > w.reversion:
		return models.StrategyTrend
	case w.reversion > w.trend:
		return models.StrategyMeanReversion
	default:
		return models.StrategyBlended
	}
}

func sentimentNote(sent float64) string {
	if math.Abs(sent) > newsOverrideMagnitude {
		return fmt.Sprintf("news sentiment %.1f", sent)
	}
	return ""
}

func scoringReady(b *models.Bar) bool {
	return b.MACD != nil && b.MACDSignal != nil && b.MACDHist != nil &&
		b.BBUpper != nil && b.BBMiddle != nil && b.BBLower != nil &&
		b.EMA200 != nil && b.ADX != nil && b.RSI != nil
}
