package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// TickRecorder batches raw ticks into the InfluxDB archive so the feed
// callback never waits on a network write.
type TickRecorder struct {
	influx *database.InfluxClient
	logger *logrus.Entry

	batchSize     int
	flushInterval time.Duration

	buffer   []*models.Tick
	bufferMu sync.Mutex

	// Error rate limiting
	errorMu       sync.Mutex
	lastErrorLog  time.Time
	errorCount    int
	errorInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTickRecorder creates a recorder writing to the given archive.
func NewTickRecorder(influx *database.InfluxClient, logger *logrus.Logger) *TickRecorder {
	return &TickRecorder{
		influx:        influx,
		logger:        logger.WithField("component", "tick-recorder"),
		batchSize:     200,
		flushInterval: time.Second,
		buffer:        make([]*models.Tick, 0, 200),
		errorInterval: 5 * time.Second,
		done:          make(chan struct{}),
	}
}

// Start starts the flush loop.
func (tr *TickRecorder) Start() {
	tr.wg.Add(1)
	go tr.flushLoop()
	tr.logger.Info("Tick recorder started")
}

// Stop stops the flush loop and writes whatever is still buffered.
func (tr *TickRecorder) Stop() {
	close(tr.done)
	tr.wg.Wait()
	tr.flush()
	tr.logger.Info("Tick recorder stopped")
}

// Record buffers one tick for the next flush.
func (tr *TickRecorder) Record(tick *models.Tick) {
	tr.bufferMu.Lock()
	tr.buffer = append(tr.buffer, tick)
	shouldFlush := len(tr.buffer) >= tr.batchSize
	tr.bufferMu.Unlock()

	if shouldFlush {
		go tr.flush()
	}
}

func (tr *TickRecorder) flushLoop() {
	defer tr.wg.Done()

	ticker := time.NewTicker(tr.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tr.done:
			return
		case <-ticker.C:
			tr.flush()
		}
	}
}

func (tr *TickRecorder) flush() {
	tr.bufferMu.Lock()
	if len(tr.buffer) == 0 {
		tr.bufferMu.Unlock()
		return
	}

	batch := make([]*models.Tick, len(tr.buffer))
	copy(batch, tr.buffer)
	tr.buffer = tr.buffer[:0]
	tr.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := tr.influx.WriteTicks(ctx, batch); err != nil {
		tr.handleError(err, len(batch))
		return
	}

	tr.errorMu.Lock()
	tr.errorCount = 0
	tr.errorMu.Unlock()
}

// handleError logs write failures at most once per errorInterval so a
// dead archive cannot flood the log at tick rate.
func (tr *TickRecorder) handleError(err error, batchSize int) {
	tr.errorMu.Lock()
	tr.errorCount++
	count := tr.errorCount
	now := time.Now()
	throttled := now.Sub(tr.lastErrorLog) < tr.errorInterval
	if !throttled {
		tr.lastErrorLog = now
	}
	tr.errorMu.Unlock()

	if throttled {
		return
	}

	tr.logger.WithFields(logrus.Fields{
		"error":       err,
		"batch_size":  batchSize,
		"error_count": count,
	}).Error("Failed to write tick batch")

	if count > 10 {
		tr.logger.WithField("error_count", count).
			Warn("Persistent archive write errors, dropping tick history")
	}
}
