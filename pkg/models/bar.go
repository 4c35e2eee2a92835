package models

import (
	"time"
)

// Bar represents OHLCV candlestick data for one interval, plus the
// indicator values attached after the interval closed. Indicator fields
// are nil until enough history exists to compute them.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	EMA12      *float64 `json:"ema12,omitempty"`
	EMA26      *float64 `json:"ema26,omitempty"`
	EMA200     *float64 `json:"ema200,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
	MACDHist   *float64 `json:"macd_hist,omitempty"`
	BBUpper    *float64 `json:"bb_upper,omitempty"`
	BBMiddle   *float64 `json:"bb_middle,omitempty"`
	BBLower    *float64 `json:"bb_lower,omitempty"`
	ATR        *float64 `json:"atr,omitempty"`
	ADX        *float64 `json:"adx,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
}

// ClearIndicators resets every indicator field so a recomputation pass
// starts from a clean bar.
func (b *Bar) ClearIndicators() {
	b.EMA12 = nil
	b.EMA26 = nil
	b.EMA200 = nil
	b.MACD = nil
	b.MACDSignal = nil
	b.MACDHist = nil
	b.BBUpper = nil
	b.BBMiddle = nil
	b.BBLower = nil
	b.ATR = nil
	b.ADX = nil
	b.RSI = nil
}

// Float64Ptr returns a pointer to v, for populating indicator fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
