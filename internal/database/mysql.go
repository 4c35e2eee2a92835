package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// MySQLClient persists the signal ledger. Every emitted signal gets a
// row on creation and an outcome update on resolution, so history
// survives restarts.
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLClient, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
		cfg:    cfg,
	}, nil
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return mc.db.PingContext(ctx)
}

// Migrate creates the signal ledger schema.
func (mc *MySQLClient) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS signals (
			id             VARCHAR(36)  NOT NULL,
			created_at     TIMESTAMP(3) NOT NULL,
			timeframe      VARCHAR(8)   NOT NULL,
			direction      VARCHAR(4)   NOT NULL,
			entry_price    DOUBLE       NOT NULL,
			score          DOUBLE       NOT NULL,
			confidence     DOUBLE       NOT NULL,
			tier           VARCHAR(16)  NOT NULL,
			strategy       VARCHAR(32)  NOT NULL,
			regime         VARCHAR(32)  NOT NULL,
			prediction     DOUBLE       NULL,
			sentiment_note VARCHAR(64)  NOT NULL DEFAULT '',
			status         VARCHAR(8)   NOT NULL DEFAULT 'PENDING',
			exit_price     DOUBLE       NULL,
			pnl            DOUBLE       NULL,
			resolved_at    TIMESTAMP(3) NULL,
			PRIMARY KEY (id),
			INDEX idx_signals_status (status),
			INDEX idx_signals_timeframe (timeframe),
			INDEX idx_signals_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := mc.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create signals table: %w", err)
	}

	mc.logger.Info("Signal ledger schema up to date")
	return nil
}

// Signal operations

// InsertSignal stores a freshly created signal.
func (mc *MySQLClient) InsertSignal(ctx context.Context, signal *models.Signal) error {
	query := `
		INSERT INTO signals (
			id, created_at, timeframe, direction, entry_price,
			score, confidence, tier, strategy, regime,
			prediction, sentiment_note, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mc.db.ExecContext(ctx, query,
		signal.ID,
		signal.CreatedAt,
		signal.Timeframe,
		string(signal.Direction),
		signal.Entry,
		signal.Score,
		signal.Confidence,
		string(signal.Tier),
		signal.Strategy,
		signal.Regime,
		signal.Prediction,
		signal.SentimentNote,
		string(signal.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	return nil
}

// MarkResolved records the outcome of a settled signal.
func (mc *MySQLClient) MarkResolved(ctx context.Context, signal *models.Signal) error {
	query := `
		UPDATE signals SET
			status = ?,
			exit_price = ?,
			pnl = ?,
			resolved_at = ?
		WHERE id = ?
	`

	result, err := mc.db.ExecContext(ctx, query,
		string(signal.Status),
		signal.ExitPrice,
		signal.PnL,
		signal.ResolvedAt,
		signal.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark signal resolved: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		mc.logger.WithField("signal_id", signal.ID).Warn("Resolved signal not found in ledger")
	}

	return nil
}

// RecentSignals returns the newest signals, optionally filtered by status.
func (mc *MySQLClient) RecentSignals(ctx context.Context, status string, limit int) ([]*models.Signal, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, created_at, timeframe, direction, entry_price,
		       score, confidence, tier, strategy, regime,
		       prediction, sentiment_note, status, exit_price, pnl, resolved_at
		FROM signals
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := mc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}

	return signals, rows.Err()
}

// AllTimeStats aggregates resolved outcomes per timeframe over the
// whole ledger, not just the current process lifetime.
func (mc *MySQLClient) AllTimeStats(ctx context.Context) ([]models.SignalStats, error) {
	query := `
		SELECT timeframe,
		       COUNT(*) AS total,
		       SUM(status = 'WIN') AS wins,
		       SUM(status = 'LOSS') AS losses,
		       COALESCE(SUM(pnl), 0) AS net_pnl
		FROM signals
		WHERE status != 'PENDING'
		GROUP BY timeframe
		ORDER BY timeframe
	`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SignalStats
	for rows.Next() {
		var st models.SignalStats
		if err := rows.Scan(&st.Timeframe, &st.Total, &st.Wins, &st.Losses, &st.NetPnL); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		if st.Total > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Total)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

func scanSignal(rows *sql.Rows) (*models.Signal, error) {
	var (
		signal     models.Signal
		direction  string
		tier       string
		status     string
		prediction sql.NullFloat64
		exitPrice  sql.NullFloat64
		pnl        sql.NullFloat64
		resolvedAt sql.NullTime
	)

	err := rows.Scan(
		&signal.ID,
		&signal.CreatedAt,
		&signal.Timeframe,
		&direction,
		&signal.Entry,
		&signal.Score,
		&signal.Confidence,
		&tier,
		&signal.Strategy,
		&signal.Regime,
		&prediction,
		&signal.SentimentNote,
		&status,
		&exitPrice,
		&pnl,
		&resolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}

	signal.Direction = models.Direction(direction)
	signal.Tier = models.Tier(tier)
	signal.Status = models.SignalStatus(status)
	if prediction.Valid {
		signal.Prediction = models.Float64Ptr(prediction.Float64)
	}
	if exitPrice.Valid {
		signal.ExitPrice = models.Float64Ptr(exitPrice.Float64)
	}
	if pnl.Valid {
		signal.PnL = models.Float64Ptr(pnl.Float64)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		signal.ResolvedAt = &t
	}

	return &signal, nil
}
