package engine

import (
	"time"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// EventType discriminates engine output events.
type EventType string

const (
	// EventBarUpdated carries the latest annotated bar of one timeframe
	// after a base-interval seal. For the base timeframe the bar is
	// final; for coarser ones it may still be accumulating.
	EventBarUpdated EventType = "bar_updated"

	// EventSeriesUpdated carries the tail of one timeframe's annotated
	// series for cache mirrors and late-joining stream clients.
	EventSeriesUpdated EventType = "series_updated"

	EventSignalCreated   EventType = "signal_created"
	EventSignalResolved  EventType = "signal_resolved"
	EventSentimentUpdate EventType = "sentiment_updated"
)

// Event is one engine output. All payloads are value copies taken on
// the engine goroutine; consumers may retain them indefinitely.
type Event struct {
	Type      EventType      `json:"type"`
	Timeframe string         `json:"timeframe,omitempty"`
	Bar       *models.Bar    `json:"bar,omitempty"`
	Series    []models.Bar   `json:"series,omitempty"`
	Signal    *models.Signal `json:"signal,omitempty"`
	Sentiment float64        `json:"sentiment,omitempty"`
	At        time.Time      `json:"at"`

	// Closed marks a bar event whose bucket has fully elapsed. Unset on
	// coarse timeframes while the bucket is still accumulating.
	Closed bool `json:"closed,omitempty"`
}
