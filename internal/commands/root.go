// Package commands defines the CLI: the long-running server plus the
// operational tools around it (migrations, history backfill, news
// injection, signal watching).
package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eur-usd-bot",
	Short: "EUR/USD binary-options signal engine",
	Long: `A real-time trading signal engine for EUR/USD binary options.

Features:
• Live tick ingestion from OANDA or a Binance proxy stream
• Causal indicator pipeline (EMA, MACD, Bollinger, ATR, ADX, RSI)
• Trend and mean-reversion scoring across six timeframes
• Decaying news sentiment applied to every score
• Signal resolution with win/loss accounting in MySQL
• WebSocket, REST, NATS and Prometheus surfaces`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "force debug logging")
}
