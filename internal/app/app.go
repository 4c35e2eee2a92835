// Package app assembles the trading bot: connections, engine, feed,
// sinks and servers, with one Initialize/Start/Stop lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/api"
	"github.com/anveerz/eur-usd-trading-bot/internal/cache"
	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/engine"
	"github.com/anveerz/eur-usd-trading-bot/internal/feed"
	"github.com/anveerz/eur-usd-trading-bot/internal/messaging"
	"github.com/anveerz/eur-usd-trading-bot/internal/metrics"
	"github.com/anveerz/eur-usd-trading-bot/internal/oracle"
	"github.com/anveerz/eur-usd-trading-bot/internal/sentiment"
	"github.com/anveerz/eur-usd-trading-bot/internal/services"
	"github.com/anveerz/eur-usd-trading-bot/internal/signals"
	"github.com/anveerz/eur-usd-trading-bot/internal/strategy"
	"github.com/anveerz/eur-usd-trading-bot/internal/websocket"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connections
	mysqlDB    *database.MySQLClient
	influxDB   *database.InfluxClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient

	// Core components
	engine     *engine.Engine
	priceFeed  feed.Feed
	hub        *websocket.Hub
	prefetcher *oracle.Prefetcher

	// Services
	backfill   *services.Backfill
	publisher  *services.Publisher
	recorder   *services.TickRecorder
	apiServer  *api.Server
	metricsSrv *http.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (a *App) Initialize() error {
	// Initialize database connections
	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize cache
	if err := a.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	// Initialize messaging
	if err := a.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	// Initialize analysis engine
	if err := a.initializeEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	// Initialize price feed
	if err := a.initializeFeed(); err != nil {
		return fmt.Errorf("failed to initialize feed: %w", err)
	}

	// Initialize publishing services and API server
	a.initializeServices()
	a.initializeAPIServer()

	return nil
}

// Start starts the application
func (a *App) Start() error {
	// Warm the engine before the first tick flows
	bars, err := a.backfill.Seed(a.ctx)
	if err != nil {
		a.logger.WithError(err).Warn("History seed failed, starting cold")
	} else if len(bars) > 0 {
		if err := a.engine.Seed(bars); err != nil {
			return fmt.Errorf("failed to seed engine: %w", err)
		}
	}

	if a.prefetcher != nil {
		if err := a.prefetcher.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start oracle prefetcher: %w", err)
		}
	}

	if err := a.engine.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Sinks before sources: the publisher and recorder must be
	// draining before the feed delivers its first tick.
	a.publisher.Start()
	a.recorder.Start()

	// News arrives over the webhook or the bus; both feed the same
	// engine queue.
	if err := a.natsClient.SubscribeNews(func(ev *models.NewsEvent) {
		a.engine.SubmitNews(ev)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to news: %w", err)
	}

	if a.hub != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.hub.Run(a.ctx)
		}()
	}

	if err := a.priceFeed.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start price feed: %w", err)
	}

	// Start API server
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("API server error")
		}
	}()

	if a.cfg.Monitoring.MetricsEnabled {
		a.metricsSrv = metrics.Serve(a.cfg.GetMetricsAddr())
		a.logger.WithField("addr", a.cfg.GetMetricsAddr()).Info("Metrics listener started")
	}

	return nil
}

// Stop gracefully stops the application. Shutdown follows the data
// path: feed first so no new ticks enter, then the engine drains its
// queues, then the publisher and recorder flush, then the servers and
// connections close.
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	// Cancel context to signal shutdown
	a.cancel()

	a.stopServices()

	// Wait for remaining goroutines with timeout
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All goroutines stopped")
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	// Close connections
	if err := a.closeConnections(); err != nil {
		a.logger.WithError(err).Error("Error closing connections")
	}

	a.logger.Info("Application stopped successfully")
	return nil
}

// stopServices stops the pipeline stages in data-path order.
func (a *App) stopServices() {
	if a.priceFeed != nil {
		a.priceFeed.Stop()
	}

	if a.engine != nil {
		a.engine.Stop()
	}

	// The engine closed its event channel, so the publisher drains
	// whatever is buffered and exits.
	if a.publisher != nil {
		a.publisher.Stop()
	}

	if a.recorder != nil {
		a.recorder.Stop()
	}

	if a.prefetcher != nil {
		a.prefetcher.Stop()
	}

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping metrics listener")
		}
		cancel()
	}
}

// GetContext returns the application context
func (a *App) GetContext() context.Context {
	return a.ctx
}

// GetConfig returns the application configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetLogger returns the application logger
func (a *App) GetLogger() *logrus.Logger {
	return a.logger
}

// Backfill exposes the history loader for the backfill command.
func (a *App) Backfill() *services.Backfill {
	return a.backfill
}

// MySQL exposes the signals ledger for the migrate command.
func (a *App) MySQL() *database.MySQLClient {
	return a.mysqlDB
}

// Private initialization methods

func (a *App) initializeDatabase() error {

	// Initialize MySQL
	mysqlClient, err := database.NewMySQLClient(&a.cfg.MySQL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	a.mysqlDB = mysqlClient

	// Initialize InfluxDB
	a.influxDB = database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)

	// Test InfluxDB connection
	if err := a.influxDB.Health(a.ctx); err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return nil
}

func (a *App) initializeCache() error {

	redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redisCache = redisClient

	return nil
}

func (a *App) initializeMessaging() error {

	natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.natsClient = natsClient

	return nil
}

func (a *App) initializeEngine() error {

	tracker := sentiment.NewTracker(a.logger)
	manager := signals.NewManager(a.cfg.Signals.WinPayout, a.cfg.Signals.LossPayout, a.logger)

	// The oracle is optional. Leave the interface nil when disabled so
	// the scorer's nil check works; a typed nil pointer would not be nil.
	var oracleSrc strategy.Oracle
	if a.cfg.Oracle.Enabled {
		client := oracle.NewClient(a.cfg.Oracle.URL, a.cfg.Oracle.RequestTimeout, a.logger)
		a.prefetcher = oracle.NewPrefetcher(client, &a.cfg.Oracle, a.cfg.Feed.Instrument, a.logger)
		oracleSrc = a.prefetcher
	}

	scorer := strategy.NewScorer(a.cfg.Signals.ScoreThreshold, tracker, oracleSrc, a.logger)

	eng, err := engine.New(
		&a.cfg.Engine,
		a.cfg.Feed.Instrument,
		scorer,
		tracker,
		manager,
		a.prefetcher,
		a.logger,
	)
	if err != nil {
		return err
	}
	a.engine = eng

	return nil
}

func (a *App) initializeFeed() error {

	priceFeed, err := feed.New(&a.cfg.Feed, a.handleTick, a.logger)
	if err != nil {
		return err
	}
	a.priceFeed = priceFeed

	return nil
}

// handleTick is the feed callback: archive the raw tick, then hand it
// to the engine. SubmitTick blocks when the analysis queue is full,
// which pushes backpressure into the feed instead of dropping ticks.
func (a *App) handleTick(tick *models.Tick) {
	if a.recorder != nil {
		a.recorder.Record(tick)
	}
	a.engine.SubmitTick(tick)
}

func (a *App) initializeServices() {

	if a.cfg.WebSocket.Enabled {
		a.hub = websocket.NewHub(a.cfg.Engine.Timeframes, a.redisCache, a.logger)
	}

	// Broker REST history needs credentials; without them Seed falls
	// back to the archive.
	var history *feed.OANDAHistory
	if a.cfg.Feed.OANDA.APIKey != "" {
		history = feed.NewOANDAHistory(&a.cfg.Feed.OANDA, a.logger)
	}
	a.backfill = services.NewBackfill(history, a.influxDB, a.cfg, a.logger)

	a.recorder = services.NewTickRecorder(a.influxDB, a.logger)
	a.publisher = services.NewPublisher(
		a.engine,
		a.natsClient,
		a.redisCache,
		a.influxDB,
		a.mysqlDB,
		a.hub,
		a.cfg.Feed.Instrument,
		a.logger,
	)
}

func (a *App) initializeAPIServer() {

	a.apiServer = api.NewServer(
		a.cfg,
		a.logger,
		a.engine,
		a.priceFeed,
		a.hub,
		a.redisCache,
		a.mysqlDB,
		a.influxDB,
		a.natsClient,
	)
}

func (a *App) closeConnections() error {

	var errs []error

	// Drain NATS so queued publishes flush before the connection drops.
	// Drain closes the connection itself; Close is the fallback.
	if a.natsClient != nil {
		if err := a.natsClient.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain NATS: %w", err))
			if err := a.natsClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close NATS: %w", err))
			}
		}
	}

	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MySQL: %w", err))
		}
	}

	if a.influxDB != nil {
		a.influxDB.Close()
		// InfluxDB Close() doesn't return an error
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}

	return nil
}
