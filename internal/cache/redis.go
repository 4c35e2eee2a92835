package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// RedisClient mirrors engine state into Redis so API handlers and
// late-joining WebSocket clients can read a snapshot without touching
// the engine goroutine.
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
}

// SentimentSnapshot is the cached news-sentiment state.
type SentimentSnapshot struct {
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Bar operations

// SetBars caches the recent bar window for a timeframe.
func (rc *RedisClient) SetBars(ctx context.Context, timeframe string, bars []models.Bar) error {
	key := fmt.Sprintf("bars:%s", timeframe)
	return rc.SetJSON(ctx, key, bars, rc.cfg.BarsTTL)
}

// GetBars returns the cached bar window for a timeframe, or nil when
// the cache is cold.
func (rc *RedisClient) GetBars(ctx context.Context, timeframe string) ([]models.Bar, error) {
	key := fmt.Sprintf("bars:%s", timeframe)

	var bars []models.Bar
	found, err := rc.GetJSON(ctx, key, &bars)
	if err != nil {
		return nil, fmt.Errorf("failed to get bars: %w", err)
	}
	if !found {
		return nil, nil
	}
	return bars, nil
}

// Sentiment operations

// SetSentiment caches the current sentiment score.
func (rc *RedisClient) SetSentiment(ctx context.Context, score float64, at time.Time) error {
	return rc.SetJSON(ctx, "sentiment:current", SentimentSnapshot{Score: score, UpdatedAt: at}, rc.cfg.BarsTTL)
}

// GetSentiment returns the cached sentiment snapshot, or nil when the
// cache is cold.
func (rc *RedisClient) GetSentiment(ctx context.Context) (*SentimentSnapshot, error) {
	var snapshot SentimentSnapshot
	found, err := rc.GetJSON(ctx, "sentiment:current", &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to get sentiment: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &snapshot, nil
}

// Signal operations

// SetPendingSignals caches the open signal slots.
func (rc *RedisClient) SetPendingSignals(ctx context.Context, signals []models.Signal) error {
	return rc.SetJSON(ctx, "signals:pending", signals, rc.cfg.BarsTTL)
}

// GetPendingSignals returns the cached open signals.
func (rc *RedisClient) GetPendingSignals(ctx context.Context) ([]models.Signal, error) {
	var signals []models.Signal
	found, err := rc.GetJSON(ctx, "signals:pending", &signals)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending signals: %w", err)
	}
	if !found {
		return nil, nil
	}
	return signals, nil
}

// Utility operations

// SetJSON stores a JSON-encoded value
func (rc *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return rc.client.Set(ctx, key, data, expiration).Err()
}

// GetJSON retrieves and decodes a JSON value
func (rc *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}
