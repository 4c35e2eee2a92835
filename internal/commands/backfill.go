package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anveerz/eur-usd-trading-bot/internal/database"
	"github.com/anveerz/eur-usd-trading-bot/internal/feed"
	"github.com/anveerz/eur-usd-trading-bot/internal/services"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
)

var (
	backfillFrom string
	backfillTo   string
	backfillDays int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill minute bars into the archive",
	Long: `Backfill historical EUR/USD minute bars from OANDA into InfluxDB.

The archive seeds the engine on cold starts, so a backfilled range
means indicators are warm immediately after a restart.

Examples:
  # Backfill the last 30 days
  eur-usd-bot backfill --days 30

  # Backfill an explicit range
  eur-usd-bot backfill --from 2025-01-01 --to 2025-03-01`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Range start (2006-01-02 or RFC3339)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Range end, defaults to now")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "Backfill the last N days instead of an explicit range")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	from, to, err := backfillRange(time.Now().UTC())
	if err != nil {
		return err
	}

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Feed.OANDA.APIKey == "" {
		return fmt.Errorf("backfill needs OANDA credentials (OANDA_API_KEY)")
	}

	// Setup logger
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})

	influxClient := database.NewInfluxClient(&cfg.InfluxDB, logger)
	defer influxClient.Close()

	history := feed.NewOANDAHistory(&cfg.Feed.OANDA, logger)
	loader := services.NewBackfill(history, influxClient, cfg, logger)

	// Ctrl-C stops between chunks and keeps what was already stored
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.WithFields(logrus.Fields{
		"instrument": cfg.Feed.Instrument,
		"from":       from.Format(time.RFC3339),
		"to":         to.Format(time.RFC3339),
	}).Info("Starting backfill")

	total, err := loader.LoadRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("backfill failed after %d bars: %w", total, err)
	}

	logger.WithField("bars", total).Info("Backfill completed successfully!")
	return nil
}

// backfillRange resolves the --from/--to/--days flags against now.
func backfillRange(now time.Time) (time.Time, time.Time, error) {
	var zero time.Time

	if backfillDays > 0 && backfillFrom != "" {
		return zero, zero, fmt.Errorf("cannot specify both --days and --from")
	}
	if backfillDays <= 0 && backfillFrom == "" {
		return zero, zero, fmt.Errorf("either --days or --from must be specified")
	}

	if backfillDays > 0 {
		return now.AddDate(0, 0, -backfillDays), now, nil
	}

	from, err := parseDate(backfillFrom)
	if err != nil {
		return zero, zero, fmt.Errorf("invalid --from: %w", err)
	}

	to := now
	if backfillTo != "" {
		if to, err = parseDate(backfillTo); err != nil {
			return zero, zero, fmt.Errorf("invalid --to: %w", err)
		}
	}

	if !from.Before(to) {
		return zero, zero, fmt.Errorf("--from %s is not before --to %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not 2006-01-02 or RFC3339", value)
}
