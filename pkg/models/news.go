package models

import (
	"time"
)

// NewsSentiment is the direction a news event leans
type NewsSentiment string

const (
	NewsPositive NewsSentiment = "POSITIVE"
	NewsNegative NewsSentiment = "NEGATIVE"
	NewsNeutral  NewsSentiment = "NEUTRAL"
)

// NewsImpact is the expected market impact tier of a news event
type NewsImpact string

const (
	ImpactHigh   NewsImpact = "HIGH"
	ImpactMedium NewsImpact = "MEDIUM"
	ImpactLow    NewsImpact = "LOW"
)

// NewsEvent represents one discrete news item consumed by the
// sentiment tracker
type NewsEvent struct {
	Headline  string        `json:"headline"`
	Sentiment NewsSentiment `json:"sentiment"`
	Impact    NewsImpact    `json:"impact"`
	Timestamp time.Time     `json:"timestamp"`
}

// SentimentLabel maps an aggregate sentiment score onto the sentiment
// enum by sign.
func SentimentLabel(score float64) NewsSentiment {
	switch {
	case score > 0:
		return NewsPositive
	case score < 0:
		return NewsNegative
	default:
		return NewsNeutral
	}
}
