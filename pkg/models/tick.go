package models

import (
	"time"
)

// Tick represents one real-time price observation from a venue feed
type Tick struct {
	Instrument string    `json:"instrument"`
	Venue      string    `json:"venue"` // Feed name (oanda, binance)
	Price      float64   `json:"price"`
	Bid        float64   `json:"bid,omitempty"`
	Ask        float64   `json:"ask,omitempty"`
	Volume     float64   `json:"volume,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
