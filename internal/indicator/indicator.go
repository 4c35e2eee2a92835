// Package indicator computes the technical indicators the signal
// scorer consumes. All computations are causal: a bar's values derive
// only from that bar and earlier ones, and every field stays nil until
// its minimum history exists.
package indicator

import (
	"math"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

const (
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	emaLongPeriod    = 200
	macdSignalPeriod = 9
	bollPeriod       = 20
	bollStdFactor    = 2.0
	wilderPeriod     = 14

	// epsilon guards zero denominators (flat windows, zero average
	// loss); a numerical fallback, not a data-quality check.
	epsilon = 1e-10
)

// MinScoringBars is the history a timeframe needs before the scorer
// sees all of MACD, Bollinger, ADX and RSI on its last two bars.
const MinScoringBars = 30

// Annotate recomputes every indicator for the sequence in place. Bars
// must be ordered ascending by timestamp.
func Annotate(bars []*models.Bar) {
	if len(bars) == 0 {
		return
	}
	for _, b := range bars {
		b.ClearIndicators()
	}
	annotateEMAs(bars)
	annotateMACD(bars)
	annotateBollinger(bars)
	annotateATRADX(bars)
	annotateRSI(bars)
}

// emaNext advances an EMA by one value, alpha = 2/(period+1)
func emaNext(prev, value float64, period int) float64 {
	alpha := 2.0 / float64(period+1)
	return value*alpha + prev*(1-alpha)
}

// rmaNext advances Wilder's moving average by one value
func rmaNext(prev, value float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + value) / p
}

// annotateEMAs computes the fast, slow and long EMAs, each seeded with
// the first close.
func annotateEMAs(bars []*models.Bar) {
	fast := bars[0].Close
	slow := bars[0].Close
	long := bars[0].Close
	for i, b := range bars {
		if i > 0 {
			fast = emaNext(fast, b.Close, emaFastPeriod)
			slow = emaNext(slow, b.Close, emaSlowPeriod)
			long = emaNext(long, b.Close, emaLongPeriod)
		}
		b.EMA12 = models.Float64Ptr(fast)
		b.EMA26 = models.Float64Ptr(slow)
		b.EMA200 = models.Float64Ptr(long)
	}
}

// annotateMACD fills line/signal/histogram from index 26 on, with the
// signal EMA seeded at the first populated line value. Requires
// annotateEMAs to have run.
func annotateMACD(bars []*models.Bar) {
	var signal float64
	seeded := false
	for i, b := range bars {
		if i < emaSlowPeriod {
			continue
		}
		line := *b.EMA12 - *b.EMA26
		if !seeded {
			signal = line
			seeded = true
		} else {
			signal = emaNext(signal, line, macdSignalPeriod)
		}
		b.MACD = models.Float64Ptr(line)
		b.MACDSignal = models.Float64Ptr(signal)
		b.MACDHist = models.Float64Ptr(line - signal)
	}
}

// annotateBollinger fills the 20-bar SMA band with population standard
// deviation once a full window exists.
func annotateBollinger(bars []*models.Bar) {
	for i := bollPeriod - 1; i < len(bars); i++ {
		var sum float64
		for j := i - bollPeriod + 1; j <= i; j++ {
			sum += bars[j].Close
		}
		mean := sum / bollPeriod

		var variance float64
		for j := i - bollPeriod + 1; j <= i; j++ {
			d := bars[j].Close - mean
			variance += d * d
		}
		variance /= bollPeriod
		std := math.Sqrt(variance)

		bars[i].BBMiddle = models.Float64Ptr(mean)
		bars[i].BBUpper = models.Float64Ptr(mean + bollStdFactor*std)
		bars[i].BBLower = models.Float64Ptr(mean - bollStdFactor*std)
	}
}

// annotateATRADX runs the Wilder smoothing chain over true range and
// directional movement. ATR appears after one full period, ADX only
// once the index exceeds twice the period so the nested smoothing has
// stabilized.
func annotateATRADX(bars []*models.Bar) {
	if len(bars) < 2 {
		return
	}

	var smTR, smPlusDM, smMinusDM, adx float64
	seeded := false
	adxSeeded := false

	for i := 1; i < len(bars); i++ {
		prev := bars[i-1]
		b := bars[i]

		tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev.Close), math.Abs(b.Low-prev.Close)))

		up := b.High - prev.High
		down := prev.Low - b.Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if !seeded {
			smTR, smPlusDM, smMinusDM = tr, plusDM, minusDM
			seeded = true
		} else {
			smTR = rmaNext(smTR, tr, wilderPeriod)
			smPlusDM = rmaNext(smPlusDM, plusDM, wilderPeriod)
			smMinusDM = rmaNext(smMinusDM, minusDM, wilderPeriod)
		}

		if i >= wilderPeriod {
			b.ATR = models.Float64Ptr(smTR)
		}

		plusDI := 100 * smPlusDM / math.Max(smTR, epsilon)
		minusDI := 100 * smMinusDM / math.Max(smTR, epsilon)
		dx := 100 * math.Abs(plusDI-minusDI) / math.Max(plusDI+minusDI, epsilon)

		if !adxSeeded {
			adx = dx
			adxSeeded = true
		} else {
			adx = rmaNext(adx, dx, wilderPeriod)
		}

		if i > 2*wilderPeriod {
			b.ADX = models.Float64Ptr(adx)
		}
	}
}

// annotateRSI applies Wilder's RSI: averages seeded from the first
// period's moves, then recursive smoothing.
func annotateRSI(bars []*models.Bar) {
	if len(bars) <= wilderPeriod {
		return
	}

	var avgGain, avgLoss float64
	for i := 1; i <= wilderPeriod; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= wilderPeriod
	avgLoss /= wilderPeriod
	bars[wilderPeriod].RSI = models.Float64Ptr(rsiValue(avgGain, avgLoss))

	for i := wilderPeriod + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = rmaNext(avgGain, gain, wilderPeriod)
		avgLoss = rmaNext(avgLoss, loss, wilderPeriod)
		bars[i].RSI = models.Float64Ptr(rsiValue(avgGain, avgLoss))
	}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		avgLoss = epsilon
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
