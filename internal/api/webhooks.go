package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/engine"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// WebhookHandler accepts news events pushed by external providers and feeds
// them into the engine's sentiment tracker.
type WebhookHandler struct {
	engine *engine.Engine
	logger *logrus.Entry
	cfg    *config.WebhookConfig
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	eng *engine.Engine,
	cfg *config.WebhookConfig,
	logger *logrus.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		engine: eng,
		logger: logger.WithField("component", "webhook-handler"),
		cfg:    cfg,
	}
}

// RegisterRoutes registers webhook endpoints
func (wh *WebhookHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/news", wh.handleNewsWebhook).Methods("POST")
}

// handleNewsWebhook ingests a single NewsEvent.
//
// Callers authenticate with either a shared secret in X-Webhook-Secret or an
// HMAC-SHA256 hex digest of the body in X-Webhook-Signature. When no secret
// is configured the endpoint is open, which is only sane on private networks.
func (wh *WebhookHandler) handleNewsWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, wh.cfg.MaxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		wh.logger.WithError(err).Warn("Failed to read webhook body")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if wh.cfg.Secret != "" && !wh.authorized(r, body) {
		wh.logger.Warn("Rejected news webhook with bad credentials")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event models.NewsEvent
	if err := json.Unmarshal(body, &event); err != nil {
		wh.logger.WithError(err).Warn("Failed to parse news payload")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := normalizeNewsEvent(&event); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wh.logger.WithFields(logrus.Fields{
		"headline":  event.Headline,
		"sentiment": event.Sentiment,
		"impact":    event.Impact,
	}).Info("Received news event")

	if !wh.engine.SubmitNews(&event) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "accepted",
		"message": "News event queued",
	})
}

// normalizeNewsEvent uppercases the enums, applies defaults for optional
// fields and rejects values outside the known sets.
func normalizeNewsEvent(event *models.NewsEvent) error {
	if strings.TrimSpace(event.Headline) == "" {
		return fmt.Errorf("headline is required")
	}

	event.Sentiment = models.NewsSentiment(strings.ToUpper(string(event.Sentiment)))
	switch event.Sentiment {
	case "":
		event.Sentiment = models.NewsNeutral
	case models.NewsPositive, models.NewsNegative, models.NewsNeutral:
	default:
		return fmt.Errorf("invalid sentiment %q", event.Sentiment)
	}

	event.Impact = models.NewsImpact(strings.ToUpper(string(event.Impact)))
	switch event.Impact {
	case "":
		event.Impact = models.ImpactLow
	case models.ImpactHigh, models.ImpactMedium, models.ImpactLow:
	default:
		return fmt.Errorf("invalid impact %q", event.Impact)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return nil
}

// authorized accepts either credential form. Comparisons are constant time.
func (wh *WebhookHandler) authorized(r *http.Request, body []byte) bool {
	if secret := r.Header.Get("X-Webhook-Secret"); secret != "" {
		return hmac.Equal([]byte(secret), []byte(wh.cfg.Secret))
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(wh.cfg.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
