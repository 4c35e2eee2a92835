package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/cache"
	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/engine"
	"github.com/anveerz/eur-usd-trading-bot/internal/feed"
	"github.com/anveerz/eur-usd-trading-bot/internal/messaging"
	"github.com/anveerz/eur-usd-trading-bot/internal/websocket"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP API server
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	// Dependencies
	engine     *engine.Engine
	priceFeed  feed.Feed
	hub        *websocket.Hub
	redisCache *cache.RedisClient
	mysqlDB    *database.MySQLClient
	influxDB   *database.InfluxClient
	natsClient *messaging.NATSClient

	// API handlers
	webhookHandler *WebhookHandler

	startedAt time.Time
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	eng *engine.Engine,
	priceFeed feed.Feed,
	hub *websocket.Hub,
	redisCache *cache.RedisClient,
	mysqlDB *database.MySQLClient,
	influxDB *database.InfluxClient,
	natsClient *messaging.NATSClient,
) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		engine:     eng,
		priceFeed:  priceFeed,
		hub:        hub,
		redisCache: redisCache,
		mysqlDB:    mysqlDB,
		influxDB:   influxDB,
		natsClient: natsClient,
		startedAt:  time.Now(),
	}

	if hub == nil {
		logger.Warn("WebSocket hub is nil in NewServer")
	}

	// Initialize API handlers
	s.webhookHandler = NewWebhookHandler(eng, &cfg.Webhook, logger)

	// Setup routes
	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Apply middleware FIRST, before defining routes
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.corsMiddleware)

	// API versioning
	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket endpoint
	apiV1.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Market data endpoints
	apiV1.HandleFunc("/bars/{timeframe}", s.handleGetBars).Methods("GET")
	apiV1.HandleFunc("/sentiment", s.handleGetSentiment).Methods("GET")

	// Signal endpoints
	apiV1.HandleFunc("/signals", s.handleGetSignals).Methods("GET")
	apiV1.HandleFunc("/signals/pending", s.handleGetPendingSignals).Methods("GET")
	apiV1.HandleFunc("/signals/stats", s.handleGetStats).Methods("GET")

	// News webhook endpoints
	if s.cfg.Webhook.Enabled {
		s.webhookHandler.RegisterRoutes(s.router)
	}

	// Debug endpoint
	apiV1.HandleFunc("/debug/status", s.handleDebugStatus).Methods("GET")
}

// Router exposes the configured handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	err := s.httpServer.ListenAndServe()
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("port %d is already in use. Try: 1) Kill the process using it: lsof -ti:%d | xargs -r kill -9, or 2) Use a different port: --port 8081", s.cfg.Server.Port, s.cfg.Server.Port)
		}
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapped.statusCode,
			"duration":   time.Since(start),
			"remote":     r.RemoteAddr,
			"user_agent": r.UserAgent(),
		}).Info("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	// Dashboards connect from arbitrary origins and the API is read-only
	// apart from the secret-guarded webhook.
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Webhook-Secret", "X-Webhook-Signature"}),
	)(next)
}

// Handler functions

// handleHealth checks the health status of all system components
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]models.ServiceHealth)
	if s.mysqlDB != nil {
		services["mysql"] = probeService(ctx, s.mysqlDB.Health)
	}
	if s.influxDB != nil {
		services["influx"] = probeService(ctx, s.influxDB.Health)
	}
	if s.redisCache != nil {
		services["redis"] = probeService(ctx, s.redisCache.Health)
	}
	if s.natsClient != nil {
		nats := models.ServiceHealth{Status: "up"}
		if !s.natsClient.IsConnected() {
			nats = models.ServiceHealth{Status: "down", Error: "not connected"}
		}
		services["nats"] = nats
	}
	if s.priceFeed != nil {
		fd := models.ServiceHealth{Status: "up"}
		if !s.priceFeed.IsConnected() {
			fd = models.ServiceHealth{Status: "down", Error: "stream disconnected"}
		}
		services["feed"] = fd
	}

	status := "healthy"
	for _, svc := range services {
		if svc.Status != "up" {
			status = "degraded"
			break
		}
	}

	connections := 0
	if s.hub != nil {
		connections = s.hub.ConnectionCount()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, models.HealthStatus{
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Services:    services,
		Connections: connections,
		Version:     Version,
	})
}

func probeService(ctx context.Context, check func(context.Context) error) models.ServiceHealth {
	start := time.Now()
	if err := check(ctx); err != nil {
		return models.ServiceHealth{
			Status:  "down",
			Latency: time.Since(start).Milliseconds(),
			Error:   err.Error(),
		}
	}
	return models.ServiceHealth{
		Status:  "up",
		Latency: time.Since(start).Milliseconds(),
	}
}

// handleWebSocket establishes WebSocket connection for real-time data
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.logger.Error("WebSocket hub is nil")
		http.Error(w, "WebSocket service unavailable", http.StatusInternalServerError)
		return
	}
	s.hub.HandleWebSocket(w, r)
}

// handleGetBars retrieves the cached annotated bars for one timeframe
func (s *Server) handleGetBars(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	timeframe := vars["timeframe"]

	if _, err := models.ParseTimeframe(timeframe); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeframe %q", timeframe))
		return
	}

	if s.redisCache == nil {
		s.respondError(w, http.StatusServiceUnavailable, "bar cache not available")
		return
	}

	bars, err := s.redisCache.GetBars(r.Context(), timeframe)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get bars from cache")
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve bars")
		return
	}

	if limit := parseLimit(r, 0); limit > 0 && limit < len(bars) {
		bars = bars[len(bars)-limit:]
	}

	out := make([]*models.Bar, len(bars))
	for i := range bars {
		out[i] = &bars[i]
	}

	s.respondJSON(w, http.StatusOK, models.BarsResponse{
		Instrument: s.cfg.Feed.Instrument,
		Timeframe:  timeframe,
		Bars:       out,
		Count:      len(out),
	})
}

// handleGetSentiment reports the current decayed news-sentiment score
func (s *Server) handleGetSentiment(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not running")
		return
	}

	score := s.engine.Tracker().Peek()
	s.respondJSON(w, http.StatusOK, models.SentimentResponse{
		Score:     score,
		Label:     string(models.SentimentLabel(score)),
		Timestamp: time.Now().Unix(),
	})
}

// handleGetSignals retrieves the signal ledger, newest first
func (s *Server) handleGetSignals(w http.ResponseWriter, r *http.Request) {
	if s.mysqlDB == nil {
		s.respondError(w, http.StatusServiceUnavailable, "signal ledger not available")
		return
	}

	status := strings.ToUpper(r.URL.Query().Get("status"))
	switch models.SignalStatus(status) {
	case "", models.SignalPending, models.SignalWin, models.SignalLoss:
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
		return
	}

	limit := parseLimit(r, 50)
	if limit > 500 {
		limit = 500
	}

	signals, err := s.mysqlDB.RecentSignals(r.Context(), status, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query signal ledger")
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve signals")
		return
	}

	s.respondJSON(w, http.StatusOK, models.SignalsResponse{
		Signals: signals,
		Count:   len(signals),
	})
}

// handleGetPendingSignals lists the signals still waiting for expiry
func (s *Server) handleGetPendingSignals(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not running")
		return
	}

	pending := s.engine.Manager().Pending()
	out := make([]*models.Signal, len(pending))
	for i := range pending {
		out[i] = &pending[i]
	}

	s.respondJSON(w, http.StatusOK, models.SignalsResponse{
		Signals: out,
		Count:   len(out),
	})
}

// handleGetStats reports win/loss statistics per timeframe.
//
// The default scope covers signals resolved by the current process; scope=all
// reads the durable ledger instead so restarts do not reset the record.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	var stats []models.SignalStats

	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "session":
		if s.engine == nil {
			s.respondError(w, http.StatusServiceUnavailable, "engine not running")
			return
		}
		stats = s.engine.Manager().Stats()
	case "all":
		if s.mysqlDB == nil {
			s.respondError(w, http.StatusServiceUnavailable, "signal ledger not available")
			return
		}
		var err error
		stats, err = s.mysqlDB.AllTimeStats(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to query ledger stats")
			s.respondError(w, http.StatusInternalServerError, "failed to retrieve stats")
			return
		}
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid scope %q", scope))
		return
	}

	resp := models.StatsResponse{
		Instrument: s.cfg.Feed.Instrument,
		Timeframes: make([]*models.SignalStats, 0, len(stats)),
	}
	for i := range stats {
		if stats[i].Timeframe == "all" {
			resp.Overall = stats[i]
			continue
		}
		resp.Timeframes = append(resp.Timeframes, &stats[i])
	}
	if resp.Overall.Timeframe == "" {
		resp.Overall = rollupStats(stats)
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// rollupStats folds per-timeframe rows into a single "all" entry for sources
// that do not precompute one.
func rollupStats(stats []models.SignalStats) models.SignalStats {
	overall := models.SignalStats{Timeframe: "all"}
	for _, st := range stats {
		overall.Total += st.Total
		overall.Wins += st.Wins
		overall.Losses += st.Losses
		overall.NetPnL += st.NetPnL
	}
	if overall.Total > 0 {
		overall.WinRate = float64(overall.Wins) / float64(overall.Total)
	}
	return overall
}

// handleDebugStatus returns debug information about server state
func (s *Server) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"mysql_connected":  s.mysqlDB != nil,
		"influx_connected": s.influxDB != nil,
		"redis_connected":  s.redisCache != nil,
		"nats_connected":   s.natsClient != nil && s.natsClient.IsConnected(),
		"feed_connected":   s.priceFeed != nil && s.priceFeed.IsConnected(),
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
	}

	if s.hub != nil {
		status["websocket_clients"] = s.hub.ConnectionCount()
	}
	if s.engine != nil {
		status["pending_signals"] = s.engine.Manager().PendingCount()
		status["sentiment"] = s.engine.Tracker().Peek()
	}

	s.respondJSON(w, http.StatusOK, status)
}

// Response helpers

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements the http.Hijacker interface to support WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement http.Hijacker")
}
