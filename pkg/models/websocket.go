package models

// WebSocketMessage represents generic WebSocket message structure
type WebSocketMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Stream event names broadcast to WebSocket clients
const (
	EventSignalCreated    = "signal.created"
	EventSignalResolved   = "signal.resolved"
	EventBarClosed        = "bar.closed"
	EventBarUpdated       = "bar.updated"
	EventSentimentUpdated = "sentiment.updated"
	EventSnapshot         = "snapshot"
)

// ErrorResponse represents error message structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus represents system health information
type HealthStatus struct {
	Status      string                   `json:"status"`
	Timestamp   string                   `json:"timestamp"`
	Services    map[string]ServiceHealth `json:"services"`
	Connections int                      `json:"connections"`
	Version     string                   `json:"version"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Latency int64  `json:"latency_ms,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BarsResponse represents the annotated-bars API response
type BarsResponse struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Bars       []*Bar `json:"bars"`
	Count      int    `json:"count"`
}

// SignalsResponse represents the signals API response
type SignalsResponse struct {
	Signals []*Signal `json:"signals"`
	Count   int       `json:"count"`
}

// StatsResponse represents the outcome-statistics API response
type StatsResponse struct {
	Instrument string         `json:"instrument"`
	Overall    SignalStats    `json:"overall"`
	Timeframes []*SignalStats `json:"timeframes"`
}

// SentimentResponse represents the sentiment API response
type SentimentResponse struct {
	Score     float64 `json:"score"`
	Label     string  `json:"label"`
	Timestamp int64   `json:"timestamp"`
}

// BarEvent is the payload published on every sealed bar
type BarEvent struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Bar        *Bar   `json:"bar"`
}
