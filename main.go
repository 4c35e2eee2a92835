package main

import (
	"os"

	"github.com/anveerz/eur-usd-trading-bot/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}