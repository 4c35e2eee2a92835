package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// NATSClient publishes engine output to JetStream and consumes news
// events submitted by external producers.
type NATSClient struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	encoder *nats.EncodedConn
	logger  *logrus.Entry
	cfg     *config.NATSConfig

	subs   map[string]*nats.Subscription
	subsMu sync.RWMutex
}

// NewNATSClient connects to NATS and ensures the JetStream streams exist.
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	encoder, err := nats.NewEncodedConn(conn, nats.JSON_ENCODER)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create encoded connection: %w", err)
	}

	nc := &NATSClient{
		conn:    conn,
		js:      js,
		encoder: encoder,
		logger:  logger.WithField("component", "nats"),
		cfg:     cfg,
		subs:    make(map[string]*nats.Subscription),
	}

	if err := nc.initializeStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return nc, nil
}

// Close unsubscribes everything and closes the connection.
func (nc *NATSClient) Close() error {
	nc.subsMu.Lock()
	for _, sub := range nc.subs {
		sub.Unsubscribe()
	}
	nc.subs = make(map[string]*nats.Subscription)
	nc.subsMu.Unlock()

	nc.encoder.Close()
	nc.conn.Close()
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// Drain drains the connection (graceful shutdown)
func (nc *NATSClient) Drain() error {
	return nc.conn.Drain()
}

// initializeStreams creates JetStream streams
func (nc *NATSClient) initializeStreams() error {
	// Bar stream for live candle updates across all timeframes
	_, err := nc.js.AddStream(&nats.StreamConfig{
		Name:     "BARS",
		Subjects: []string{"bars.>"},
		Storage:  nats.MemoryStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  1000000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create BARS stream: %w", err)
	}

	// Signal stream survives restarts so resolutions stay auditable
	_, err = nc.js.AddStream(&nats.StreamConfig{
		Name:     "SIGNALS",
		Subjects: []string{"signals.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create SIGNALS stream: %w", err)
	}

	// News stream for inbound events and sentiment updates
	_, err = nc.js.AddStream(&nats.StreamConfig{
		Name:     "NEWS",
		Subjects: []string{"news.>"},
		Storage:  nats.MemoryStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  10000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create NEWS stream: %w", err)
	}

	return nil
}

// Bar operations

// PublishBar publishes a bar update for a timeframe. Bars are the hot
// path, so the publish is async with a bounded wait for the ack.
func (nc *NATSClient) PublishBar(timeframe string, bar *models.Bar) error {
	subject := fmt.Sprintf("bars.%s", timeframe)
	data, err := json.Marshal(bar)
	if err != nil {
		return fmt.Errorf("failed to marshal bar: %w", err)
	}

	future, err := nc.js.PublishAsync(subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish bar: %w", err)
	}

	select {
	case <-future.Ok():
		return nil
	case err := <-future.Err():
		return fmt.Errorf("failed to publish bar: %w", err)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("publish timeout for subject %s", subject)
	}
}

// Signal operations

// PublishSignalCreated publishes a freshly emitted signal.
func (nc *NATSClient) PublishSignalCreated(signal *models.Signal) error {
	return nc.publishSignal("signals.created", signal)
}

// PublishSignalResolved publishes a settled signal with its outcome.
func (nc *NATSClient) PublishSignalResolved(signal *models.Signal) error {
	return nc.publishSignal("signals.resolved", signal)
}

func (nc *NATSClient) publishSignal(subject string, signal *models.Signal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if _, err := nc.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}

// News operations

// PublishNews publishes a news event for the engine to consume.
func (nc *NATSClient) PublishNews(event *models.NewsEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal news event: %w", err)
	}
	if _, err := nc.js.Publish("news.events", data); err != nil {
		return fmt.Errorf("failed to publish news event: %w", err)
	}
	return nil
}

// PublishSentiment publishes the current sentiment score.
func (nc *NATSClient) PublishSentiment(score float64, at time.Time) error {
	data, err := json.Marshal(map[string]interface{}{
		"score":     score,
		"timestamp": at,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment: %w", err)
	}
	if _, err := nc.js.Publish("news.sentiment", data); err != nil {
		return fmt.Errorf("failed to publish sentiment: %w", err)
	}
	return nil
}

// SubscribeNews subscribes to news events from external producers.
func (nc *NATSClient) SubscribeNews(handler func(*models.NewsEvent)) error {
	subject := "news.events"

	sub, err := nc.encoder.Subscribe(subject, func(event *models.NewsEvent) {
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to news: %w", err)
	}

	nc.subsMu.Lock()
	nc.subs[subject] = sub
	nc.subsMu.Unlock()

	return nil
}

// SubscribeSignals subscribes to signal lifecycle events.
func (nc *NATSClient) SubscribeSignals(handler func(*models.Signal)) error {
	subject := "signals.>"

	sub, err := nc.encoder.Subscribe(subject, func(signal *models.Signal) {
		handler(signal)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to signals: %w", err)
	}

	nc.subsMu.Lock()
	nc.subs[subject] = sub
	nc.subsMu.Unlock()

	return nil
}

// Unsubscribe unsubscribes from a subject
func (nc *NATSClient) Unsubscribe(subject string) error {
	nc.subsMu.Lock()
	defer nc.subsMu.Unlock()

	if sub, exists := nc.subs[subject]; exists {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
		delete(nc.subs, subject)
	}

	return nil
}
