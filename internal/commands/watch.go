package commands

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anveerz/eur-usd-trading-bot/internal/messaging"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream signal events to the terminal",
	Long: `Subscribe to the signal subjects on NATS and print every created
and resolved signal as it happens. Runs until interrupted.

Examples:
  eur-usd-bot watch`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	natsClient, err := messaging.NewNATSClient(&cfg.NATS, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsClient.Close()

	if err := natsClient.SubscribeSignals(printSignal); err != nil {
		return fmt.Errorf("failed to subscribe to signals: %w", err)
	}

	fmt.Println("Watching signals, Ctrl-C to stop...")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	return nil
}

func printSignal(sig *models.Signal) {
	ts := time.Now().Format("15:04:05")
	switch sig.Status {
	case models.SignalPending:
		fmt.Printf("%s  NEW  %-4s %-4s entry=%.5f score=%.1f tier=%s regime=%s\n",
			ts, sig.Timeframe, sig.Direction, sig.Entry, sig.Score, sig.Tier, sig.Regime)
	default:
		exit, pnl := 0.0, 0.0
		if sig.ExitPrice != nil {
			exit = *sig.ExitPrice
		}
		if sig.PnL != nil {
			pnl = *sig.PnL
		}
		fmt.Printf("%s  %-4s %-4s %-4s entry=%.5f exit=%.5f pnl=%+.2f\n",
			ts, sig.Status, sig.Timeframe, sig.Direction, sig.Entry, exit, pnl)
	}
}
