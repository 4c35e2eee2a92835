package models

import (
	"fmt"
	"strconv"
	"time"
)

// BaseInterval is the aggregation interval for live ticks. Every other
// timeframe is resampled from bars of this interval.
const BaseInterval = time.Minute

// DefaultTimeframes lists the timeframes analyzed on every bar close,
// ordered from finest to coarsest.
var DefaultTimeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h"}

// ParseTimeframe converts a label such as "5m" or "1h" into a duration.
// Only minute and hour units are supported.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe unit in %q", tf)
	}
}

// TimeframeMillis returns the bucket width of tf in milliseconds.
func TimeframeMillis(tf string) (int64, error) {
	d, err := ParseTimeframe(tf)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}

// ValidateTimeframes parses every label and returns the first error.
func ValidateTimeframes(tfs []string) error {
	if len(tfs) == 0 {
		return fmt.Errorf("no timeframes configured")
	}
	for _, tf := range tfs {
		if _, err := ParseTimeframe(tf); err != nil {
			return err
		}
	}
	return nil
}
