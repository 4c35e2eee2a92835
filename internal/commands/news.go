package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anveerz/eur-usd-trading-bot/internal/messaging"
	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

var (
	newsHeadline  string
	newsSentiment string
	newsImpact    string
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Publish a news event to the bus",
	Long: `Publish a news event to NATS for the running server to consume.

The server applies the event to its sentiment tracker exactly as if it
had arrived over the news webhook. Useful for manual market notes and
for exercising the sentiment path in staging.

Examples:
  eur-usd-bot news --headline "ECB holds rates" --sentiment NEUTRAL --impact HIGH
  eur-usd-bot news --headline "US payrolls beat forecasts" --sentiment NEGATIVE`,
	RunE: runNews,
}

func init() {
	newsCmd.Flags().StringVar(&newsHeadline, "headline", "", "Event headline (required)")
	newsCmd.Flags().StringVar(&newsSentiment, "sentiment", "NEUTRAL", "POSITIVE, NEGATIVE or NEUTRAL")
	newsCmd.Flags().StringVar(&newsImpact, "impact", "LOW", "HIGH, MEDIUM or LOW")
	newsCmd.MarkFlagRequired("headline")

	rootCmd.AddCommand(newsCmd)
}

func runNews(cmd *cobra.Command, args []string) error {
	event, err := buildNewsEvent(newsHeadline, newsSentiment, newsImpact, time.Now().UTC())
	if err != nil {
		return err
	}

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

	if err := natsClient.PublishNews(event); err != nil {
		return fmt.Errorf("failed to publish news: %w", err)
	}

	fmt.Printf("✅ Published: %s [%s/%s]\n", event.Headline, event.Sentiment, event.Impact)
	return nil
}

// buildNewsEvent validates the flag values into an event.
func buildNewsEvent(headline, sentiment, impact string, at time.Time) (*models.NewsEvent, error) {
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return nil, fmt.Errorf("headline is required")
	}

	event := &models.NewsEvent{
		Headline:  headline,
		Sentiment: models.NewsSentiment(strings.ToUpper(sentiment)),
		Impact:    models.NewsImpact(strings.ToUpper(impact)),
		Timestamp: at,
	}

	switch event.Sentiment {
	case models.NewsPositive, models.NewsNegative, models.NewsNeutral:
	default:
		return nil, fmt.Errorf("invalid sentiment %q", sentiment)
	}

	switch event.Impact {
	case models.ImpactHigh, models.ImpactMedium, models.ImpactLow:
	default:
		return nil, fmt.Errorf("invalid impact %q", impact)
	}

	return event, nil
}
