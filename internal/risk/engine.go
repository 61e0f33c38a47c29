package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
)

// Engine enforces session-level exposure limits on top of the per-route
// gates: a profit floor in absolute dollars, a kill switch after repeated
// execution failures, and a cap on cumulative notional turned over in one
// session.
type Engine struct {
	mu  sync.Mutex
	cfg *config.Config

	consecFails     int
	sessionNotional decimal.Decimal
	halted          bool
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// AllowTrade decides whether one more execution may go out. The returned
// reason is empty when allowed.
func (e *Engine) AllowTrade(netUSD, notionalUSD decimal.Decimal) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return false, fmt.Sprintf("halted after %d consecutive failures", e.consecFails)
	}
	if floor := e.cfg.Risk.MinProfitUSD; floor > 0 && netUSD.LessThan(decimal.NewFromFloat(floor)) {
		return false, fmt.Sprintf("net $%s below floor $%.2f", netUSD.StringFixed(2), floor)
	}
	if limit := e.cfg.Risk.MaxSessionNotionalUSD; limit > 0 {
		if e.sessionNotional.Add(notionalUSD).GreaterThan(decimal.NewFromFloat(limit)) {
			return false, fmt.Sprintf("session notional cap $%.0f reached", limit)
		}
	}
	return true, ""
}

// RecordResult reports the outcome of an attempted execution. A success
// resets the failure streak; enough consecutive failures halt the session.
func (e *Engine) RecordResult(ok bool, notionalUSD decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ok {
		e.consecFails = 0
		e.sessionNotional = e.sessionNotional.Add(notionalUSD)
		return
	}
	e.consecFails++
	if e.consecFails >= e.cfg.Risk.MaxConsecutiveFailures {
		e.halted = true
	}
}

// Halted reports whether the kill switch has tripped.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}
