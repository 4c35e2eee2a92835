// Package services wires the engine to the world around it: seeding
// history before start, fanning engine events out to the sinks, and
// archiving the raw tick stream.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/cache"
	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/engine"
	"github.com/anveerz/eur-usd-trading-bot/internal/messaging"
	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/internal/websocket"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

const sinkWriteTimeout = 5 * time.Second

// Publisher drains the engine event stream and mirrors it into the
// downstream sinks: NATS subjects for other processes, the Redis
// snapshot for API reads and late WebSocket joiners, InfluxDB for the
// bar archive, MySQL for the durable signal ledger and the hub for
// connected clients. Nil sinks are skipped, so partial deployments
// still run. Writes are synchronous; when every sink is slow the
// engine's event buffer fills and backpressure reaches the tick queue.
type Publisher struct {
	engine     *engine.Engine
	nats       *messaging.NATSClient
	redis      *cache.RedisClient
	influx     *database.InfluxClient
	mysql      *database.MySQLClient
	hub        *websocket.Hub
	instrument string
	logger     *logrus.Entry
	wg         sync.WaitGroup
}

// NewPublisher creates a publisher over the engine's event stream.
func NewPublisher(
	eng *engine.Engine,
	nats *messaging.NATSClient,
	redis *cache.RedisClient,
	influx *database.InfluxClient,
	mysql *database.MySQLClient,
	hub *websocket.Hub,
	instrument string,
	logger *logrus.Logger,
) *Publisher {
	return &Publisher{
		engine:     eng,
		nats:       nats,
		redis:      redis,
		influx:     influx,
		mysql:      mysql,
		hub:        hub,
		instrument: instrument,
		logger:     logger.WithField("component", "publisher"),
	}
}

// Start begins draining engine events.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
	p.logger.Info("Publisher started")
}

// Stop waits for the drain loop to flush. The engine closes its event
// channel on Stop, so stop the engine first.
func (p *Publisher) Stop() {
	p.wg.Wait()
	p.logger.Info("Publisher stopped")
}

func (p *Publisher) run() {
	defer p.wg.Done()
	events := p.engine.Events()
	for ev := range events {
		metrics.QueueDepth.WithLabelValues("events").Set(float64(len(events)))
		p.dispatch(ev)
	}
}

func (p *Publisher) dispatch(ev engine.Event) {
	switch ev.Type {
	case engine.EventBarUpdated:
		p.publishBar(ev)
	case engine.EventSeriesUpdated:
		p.cacheSeries(ev)
	case engine.EventSignalCreated:
		p.signalCreated(ev)
	case engine.EventSignalResolved:
		p.signalResolved(ev)
	case engine.EventSentimentUpdate:
		p.sentimentUpdated(ev)
	default:
		p.logger.WithField("type", ev.Type).Warn("Unknown engine event")
	}
}

func (p *Publisher) publishBar(ev engine.Event) {
	if p.hub != nil {
		wsEvent := models.EventBarUpdated
		if ev.Closed {
			wsEvent = models.EventBarClosed
		}
		p.hub.Broadcast(wsEvent, ev.Timeframe, models.BarEvent{
			Instrument: p.instrument,
			Timeframe:  ev.Timeframe,
			Bar:        ev.Bar,
		})
	}

	if p.nats != nil {
		if err := p.nats.PublishBar(ev.Timeframe, ev.Bar); err != nil {
			p.sinkError("nats", err)
		}
	}

	if p.influx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := p.influx.WriteBar(ctx, p.instrument, ev.Timeframe, ev.Bar); err != nil {
			p.sinkError("influx", err)
		}
		cancel()
	}
}

func (p *Publisher) cacheSeries(ev engine.Event) {
	if p.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := p.redis.SetBars(ctx, ev.Timeframe, ev.Series); err != nil {
		p.sinkError("redis", err)
	}
}

func (p *Publisher) signalCreated(ev engine.Event) {
	// Ledger first: a signal that never reaches MySQL cannot be marked
	// resolved later.
	if p.mysql != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := p.mysql.InsertSignal(ctx, ev.Signal); err != nil {
			p.sinkError("mysql", err)
		}
		cancel()
	}

	if p.nats != nil {
		if err := p.nats.PublishSignalCreated(ev.Signal); err != nil {
			p.sinkError("nats", err)
		}
	}
	if p.hub != nil {
		p.hub.Broadcast(models.EventSignalCreated, "", ev.Signal)
	}
	p.cachePending()
}

func (p *Publisher) signalResolved(ev engine.Event) {
	if p.mysql != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := p.mysql.MarkResolved(ctx, ev.Signal); err != nil {
			p.sinkError("mysql", err)
		}
		cancel()
	}

	if p.nats != nil {
		if err := p.nats.PublishSignalResolved(ev.Signal); err != nil {
			p.sinkError("nats", err)
		}
	}
	if p.hub != nil {
		p.hub.Broadcast(models.EventSignalResolved, "", ev.Signal)
	}
	p.cachePending()
}

func (p *Publisher) sentimentUpdated(ev engine.Event) {
	if p.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := p.redis.SetSentiment(ctx, ev.Sentiment, ev.At); err != nil {
			p.sinkError("redis", err)
		}
		cancel()
	}

	if p.nats != nil {
		if err := p.nats.PublishSentiment(ev.Sentiment, ev.At); err != nil {
			p.sinkError("nats", err)
		}
	}

	if p.hub != nil {
		p.hub.Broadcast(models.EventSentimentUpdated, "", models.SentimentResponse{
			Score:     ev.Sentiment,
			Label:     string(models.SentimentLabel(ev.Sentiment)),
			Timestamp: ev.At.Unix(),
		})
	}
}

// cachePending mirrors the open-signal set into Redis after every
// lifecycle change so snapshots never show stale pendings.
func (p *Publisher) cachePending() {
	if p.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := p.redis.SetPendingSignals(ctx, p.engine.Manager().Pending()); err != nil {
		p.sinkError("redis", err)
	}
}

func (p *Publisher) sinkError(sink string, err error) {
	metrics.PublishErrorsTotal.WithLabelValues(sink).Inc()
	p.logger.WithError(err).WithField("sink", sink).Warn("Publish failed")
}
