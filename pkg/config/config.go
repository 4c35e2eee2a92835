package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `env:", prefix=SERVER_"`
	MySQL      MySQLConfig      `env:", prefix=MYSQL_"`
	InfluxDB   InfluxConfig     `env:", prefix=INFLUXDB_"`
	Redis      RedisConfig      `env:", prefix=REDIS_"`
	NATS       NATSConfig       `env:", prefix=NATS_"`
	Feed       FeedConfig       `env:", prefix=FEED_"`
	Engine     EngineConfig     `env:", prefix=ENGINE_"`
	Signals    SignalsConfig    `env:", prefix=SIGNALS_"`
	Oracle     OracleConfig     `env:", prefix=ORACLE_"`
	WebSocket  WebSocketConfig  `env:", prefix=WEBSOCKET_"`
	Webhook    WebhookConfig    `env:", prefix=WEBHOOK_"`
	Logging    LoggingConfig    `env:", prefix=LOG_"`
	Monitoring MonitoringConfig `env:", prefix=MONITORING_"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds the signals ledger database configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=trading"`
	User            string        `env:"USER, default=trading"`
	Password        string        `env:"PASSWORD, default=trading123"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// InfluxConfig holds InfluxDB configuration for the bar archive
type InfluxConfig struct {
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN, default=my-super-secret-auth-token"`
	Org     string        `env:"ORG, default=trading-org"`
	Bucket  string        `env:"BUCKET, default=trading"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=5"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	BarsTTL      time.Duration `env:"BARS_TTL, default=24h"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT, default=30s"`
}

// FeedConfig holds tick feed configuration
type FeedConfig struct {
	Provider             string        `env:"PROVIDER, default=oanda"` // oanda or binance
	Instrument           string        `env:"INSTRUMENT, default=EUR_USD"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY, default=1s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS, default=10"`

	Binance BinanceConfig
	OANDA   OANDAConfig
}

// BinanceConfig holds the Binance proxy feed configuration. EURUSDT
// tracks EUR/USD closely enough to keep the engine fed when the forex
// session is closed.
type BinanceConfig struct {
	Symbol string `env:"BINANCE_SYMBOL, default=EURUSDT"`
}

// OANDAConfig holds OANDA-specific configuration
type OANDAConfig struct {
	APIKey        string        `env:"OANDA_API_KEY"`
	AccountID     string        `env:"OANDA_ACCOUNT_ID"`
	Environment   string        `env:"OANDA_ENVIRONMENT, default=practice"` // live or practice
	APIURL        string        `env:"OANDA_API_URL"`                       // Auto-set based on environment
	StreamURL     string        `env:"OANDA_STREAM_URL"`                    // Auto-set based on environment
	StreamTimeout time.Duration `env:"OANDA_STREAM_TIMEOUT, default=30s"`
	RetryDelay    time.Duration `env:"OANDA_RETRY_DELAY, default=5s"`
}

// EngineConfig holds the analysis engine configuration
type EngineConfig struct {
	Timeframes         []string      `env:"TIMEFRAMES, default=1m,5m,15m,30m,1h,4h"`
	HistoryLimit       int           `env:"HISTORY_LIMIT, default=10000"`
	TickQueueSize      int           `env:"TICK_QUEUE_SIZE, default=1024"`
	EventQueueSize     int           `env:"EVENT_QUEUE_SIZE, default=256"`
	ResolutionInterval time.Duration `env:"RESOLUTION_INTERVAL, default=1s"`
	SeedBars           int           `env:"SEED_BARS, default=500"`
	CacheBars          int           `env:"CACHE_BARS, default=200"`
}

// SignalsConfig holds scoring and payout policy
type SignalsConfig struct {
	ScoreThreshold float64 `env:"SCORE_THRESHOLD, default=70"`
	WinPayout      float64 `env:"WIN_PAYOUT, default=0.85"`
	LossPayout     float64 `env:"LOSS_PAYOUT, default=-1"`
}

// OracleConfig holds the external prediction service configuration
type OracleConfig struct {
	Enabled         bool          `env:"ENABLED, default=false"`
	URL             string        `env:"URL"`
	WindowSize      int           `env:"WINDOW_SIZE, default=60"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT, default=2s"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL, default=15s"`
	MaxAge          time.Duration `env:"MAX_AGE, default=2m"`
}

// WebSocketConfig holds WebSocket hub configuration
type WebSocketConfig struct {
	Enabled         bool          `env:"ENABLED, default=true"`
	ReadBufferSize  int           `env:"READ_BUFFER_SIZE, default=1024"`
	WriteBufferSize int           `env:"WRITE_BUFFER_SIZE, default=1024"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE, default=512000"`
	PingInterval    time.Duration `env:"PING_INTERVAL, default=30s"`
	PongTimeout     time.Duration `env:"PONG_TIMEOUT, default=60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT, default=10s"`
	MaxClients      int           `env:"MAX_CLIENTS, default=1000"`
}

// WebhookConfig holds the news webhook configuration
type WebhookConfig struct {
	Enabled     bool   `env:"ENABLED, default=true"`
	Secret      string `env:"SECRET"`
	MaxBodySize int64  `env:"MAX_BODY_SIZE, default=65536"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	MetricsEnabled bool `env:"METRICS_ENABLED, default=true"`
	MetricsPort    int  `env:"METRICS_PORT, default=9090"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// Load feed provider configs separately due to nested structure
	var binanceCfg BinanceConfig
	if err := envconfig.Process(ctx, &binanceCfg); err != nil {
		return nil, fmt.Errorf("failed to process binance config: %w", err)
	}
	cfg.Feed.Binance = binanceCfg

	var oandaCfg OANDAConfig
	if err := envconfig.Process(ctx, &oandaCfg); err != nil {
		return nil, fmt.Errorf("failed to process oanda config: %w", err)
	}

	// Auto-set OANDA URLs based on environment
	if oandaCfg.Environment == "live" {
		if oandaCfg.APIURL == "" {
			oandaCfg.APIURL = "https://api-fxtrade.oanda.com"
		}
		if oandaCfg.StreamURL == "" {
			oandaCfg.StreamURL = "https://stream-fxtrade.oanda.com"
		}
	} else {
		// Default to practice
		if oandaCfg.APIURL == "" {
			oandaCfg.APIURL = "https://api-fxpractice.oanda.com"
		}
		if oandaCfg.StreamURL == "" {
			oandaCfg.StreamURL = "https://stream-fxpractice.oanda.com"
		}
	}
	cfg.Feed.OANDA = oandaCfg

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	if c.InfluxDB.URL == "" {
		return fmt.Errorf("InfluxDB URL is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required")
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}

	if c.Feed.Provider != "oanda" && c.Feed.Provider != "binance" {
		return fmt.Errorf("unknown feed provider: %s", c.Feed.Provider)
	}

	if c.Feed.Instrument == "" {
		return fmt.Errorf("feed instrument is required")
	}

	if err := models.ValidateTimeframes(c.Engine.Timeframes); err != nil {
		return fmt.Errorf("invalid timeframes: %w", err)
	}

	if c.Engine.HistoryLimit < 300 {
		return fmt.Errorf("history limit %d too small for indicator warmup", c.Engine.HistoryLimit)
	}

	if c.Signals.ScoreThreshold <= 0 {
		return fmt.Errorf("score threshold must be positive")
	}

	if c.Oracle.Enabled && c.Oracle.URL == "" {
		return fmt.Errorf("oracle URL is required when oracle is enabled")
	}

	return nil
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns HTTP API server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMetricsAddr returns the Prometheus listener address
func (c *Config) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.Monitoring.MetricsPort)
}
