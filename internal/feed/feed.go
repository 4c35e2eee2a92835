// Package feed streams live prices into the engine. OANDA is the
// primary EUR/USD source; a Binance EURUSDT trade stream serves as a
// proxy feed for environments without forex credentials.
package feed

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/config"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// TickHandler receives every tick a feed produces, in arrival order.
type TickHandler func(*models.Tick)

// Feed is a live price source for one instrument.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	IsConnected() bool
}

// New builds the feed selected by the configuration.
func New(cfg *config.FeedConfig, handler TickHandler, logger *logrus.Logger) (Feed, error) {
	switch cfg.Provider {
	case "oanda":
		return NewOANDAFeed(cfg, handler, logger), nil
	case "binance":
		return NewBinanceFeed(cfg, handler, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Provider)
	}
}
