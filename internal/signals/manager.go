// Package signals tracks pending directional signals and settles them
// against the market price once their timeframe elapses.
package signals

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// maxResolvedRetained bounds the in-memory resolution history. The full
// ledger lives in MySQL.
const maxResolvedRetained = 500

// Manager enforces one pending signal per timeframe and resolves each
// signal exactly once after its timeframe elapses. Reads return value
// copies so callers never observe a settlement mid-write.
type Manager struct {
	mu         sync.RWMutex
	pending    map[string]*models.Signal
	resolved   []*models.Signal
	winPayout  float64
	lossPayout float64
	logger     *logrus.Entry
}

// NewManager creates a lifecycle manager with the given settlement
// payouts. lossPayout is expected to be negative.
func NewManager(winPayout, lossPayout float64, logger *logrus.Logger) *Manager {
	return &Manager{
		pending:    make(map[string]*models.Signal),
		winPayout:  winPayout,
		lossPayout: lossPayout,
		logger:     logger.WithField("component", "signals"),
	}
}

// Track registers a pending signal. It fails while another signal on
// the same timeframe is still unresolved.
func (m *Manager) Track(sig *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pending[sig.Timeframe]; ok {
		return fmt.Errorf("signal %s still pending on %s", existing.ID, sig.Timeframe)
	}
	m.pending[sig.Timeframe] = sig

	m.logger.WithFields(logrus.Fields{
		"id":        sig.ID,
		"timeframe": sig.Timeframe,
		"direction": sig.Direction,
		"entry":     sig.Entry,
		"score":     sig.Score,
		"tier":      sig.Tier,
	}).Info("Tracking signal")
	return nil
}

// HasPending reports whether a signal is awaiting resolution on the
// given timeframe.
func (m *Manager) HasPending(timeframe string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pending[timeframe]
	return ok
}

// PendingCount returns the number of unresolved signals.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// ResolveDue settles every pending signal whose timeframe has elapsed,
// marking WIN when the price moved past the entry in the signal's
// direction and LOSS otherwise, an unchanged price included. It returns
// copies of the settled signals.
func (m *Manager) ResolveDue(now time.Time, price float64) []models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var settled []models.Signal
	for tf, sig := range m.pending {
		lifetime, err := models.ParseTimeframe(tf)
		if err != nil {
			m.logger.WithError(err).WithField("timeframe", tf).Error("Dropping signal with unparseable timeframe")
			delete(m.pending, tf)
			continue
		}
		if now.Sub(sig.CreatedAt) < lifetime {
			continue
		}

		m.settle(sig, now, price)
		delete(m.pending, tf)
		m.resolved = append(m.resolved, sig)
		settled = append(settled, *sig)
	}

	if len(m.resolved) > maxResolvedRetained {
		m.resolved = m.resolved[len(m.resolved)-maxResolvedRetained:]
	}
	return settled
}

func (m *Manager) settle(sig *models.Signal, now time.Time, price float64) {
	won := (sig.Direction == models.DirectionCall && price > sig.Entry) ||
		(sig.Direction == models.DirectionPut && price < sig.Entry)

	status := models.SignalLoss
	payout := m.lossPayout
	if won {
		status = models.SignalWin
		payout = m.winPayout
	}

	resolvedAt := now
	sig.Status = status
	sig.ExitPrice = models.Float64Ptr(price)
	sig.PnL = models.Float64Ptr(payout)
	sig.ResolvedAt = &resolvedAt

	m.logger.WithFields(logrus.Fields{
		"id":        sig.ID,
		"timeframe": sig.Timeframe,
		"direction": sig.Direction,
		"entry":     sig.Entry,
		"exit":      price,
		"status":    status,
		"pnl":       payout,
	}).Info("Signal resolved")
}

// Pending returns copies of the unresolved signals ordered by creation
// time.
func (m *Manager) Pending() []models.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Signal, 0, len(m.pending))
	for _, sig := range m.pending {
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Resolved returns copies of the most recently settled signals, newest
// first. A non-positive limit returns the full retained history.
func (m *Manager) Resolved(limit int) []models.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.resolved)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, *m.resolved[i])
	}
	return out
}

// Stats aggregates outcomes per timeframe across the retained history,
// ordered from finest to coarsest, followed by an "all" rollup.
func (m *Manager) Stats() []models.SignalStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byTF := make(map[string]*models.SignalStats)
	total := &models.SignalStats{Timeframe: "all"}
	for _, sig := range m.resolved {
		st, ok := byTF[sig.Timeframe]
		if !ok {
			st = &models.SignalStats{Timeframe: sig.Timeframe}
			byTF[sig.Timeframe] = st
		}
		tally(st, sig)
		tally(total, sig)
	}

	out := make([]models.SignalStats, 0, len(byTF)+1)
	for _, st := range byTF {
		finish(st)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := models.ParseTimeframe(out[i].Timeframe)
		dj, _ := models.ParseTimeframe(out[j].Timeframe)
		return di < dj
	})
	finish(total)
	out = append(out, *total)
	return out
}

func tally(st *models.SignalStats, sig *models.Signal) {
	st.Total++
	if sig.Status == models.SignalWin {
		st.Wins++
	} else {
		st.Losses++
	}
	if sig.PnL != nil {
		st.NetPnL += *sig.PnL
	}
}

func finish(st *models.SignalStats) {
	if st.Total > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Total)
	}
}
