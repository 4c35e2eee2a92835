package models

import (
	"time"
)

// Direction is the side a signal bets on
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// SignalStatus tracks a signal through its lifecycle
type SignalStatus string

const (
	SignalPending SignalStatus = "PENDING"
	SignalWin     SignalStatus = "WIN"
	SignalLoss    SignalStatus = "LOSS"
)

// Tier buckets a raw score into a strength label
type Tier string

const (
	TierWeak     Tier = "WEAK"
	TierModerate Tier = "MODERATE"
	TierStrong   Tier = "STRONG"
	TierMax      Tier = "MAX"
)

// Market regime labels assigned at scoring time
const (
	RegimeInsufficientData = "INSUFFICIENT_DATA"
	RegimeStrongBullTrend  = "STRONG_BULL_TREND"
	RegimeStrongBearTrend  = "STRONG_BEAR_TREND"
	RegimeChoppySideways   = "CHOPPY_SIDEWAYS"
	RegimeRanging          = "RANGING"
	RegimeNewsBullish      = "NEWS_BULLISH"
	RegimeNewsBearish      = "NEWS_BEARISH"
)

// Strategy labels recorded on emitted signals
const (
	StrategyTrend         = "TREND_FOLLOWING"
	StrategyMeanReversion = "MEAN_REVERSION"
	StrategyBlended       = "BLENDED"
)

// Signal represents one directional trading decision awaiting a
// time-boxed win/loss resolution. The lifecycle manager exclusively owns
// Status, ExitPrice, PnL and ResolvedAt; every other field is immutable
// after creation.
type Signal struct {
	ID            string       `json:"id"`
	CreatedAt     time.Time    `json:"created_at"`
	Direction     Direction    `json:"direction"`
	Entry         float64      `json:"entry"`
	Timeframe     string       `json:"timeframe"`
	Regime        string       `json:"regime"`
	Strategy      string       `json:"strategy"`
	Score         float64      `json:"score"`
	Prediction    *float64     `json:"prediction,omitempty"`
	Confidence    float64      `json:"confidence"`
	Tier          Tier         `json:"tier"`
	SentimentNote string       `json:"sentiment_note,omitempty"`
	Status        SignalStatus `json:"status"`
	ExitPrice     *float64     `json:"exit_price,omitempty"`
	PnL           *float64     `json:"pnl,omitempty"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
}

// TierForScore maps a raw score onto its strength tier
func TierForScore(score float64) Tier {
	switch {
	case score > 100:
		return TierMax
	case score > 85:
		return TierStrong
	case score > 70:
		return TierModerate
	default:
		return TierWeak
	}
}

// SignalStats summarizes resolved-signal outcomes for one timeframe
type SignalStats struct {
	Timeframe string  `json:"timeframe"`
	Total     int     `json:"total"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"win_rate"`
	NetPnL    float64 `json:"net_pnl"`
}
