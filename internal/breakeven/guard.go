// Package breakeven validates trade legs and enforces the strict
// profitability inequality before any route is allowed through.
package breakeven

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// Validation failures are caller defects: the legs were assembled from
// corrupted upstream data and the evaluation must abort, not filter.
var (
	ErrPriceSourceMismatch = errors.New("price source mismatch")
	ErrLatencyExceeded     = errors.New("leg latency exceeds maximum")
	ErrNonPositiveNotional = errors.New("leg notional must be positive")

	// ErrInvariantViolated means net>0 while gross failed the strict
	// inequality: an arithmetic bug or corrupted inputs, never a normal
	// rejection.
	ErrInvariantViolated = errors.New("breakeven invariant violated")
)

// Leg is one hop of a route as priced during a scan. Immutable once built.
type Leg struct {
	Pair        string
	Side        types.Side
	Price       decimal.Decimal
	PriceSource types.PriceSource
	DepthLevels int
	SlippagePct decimal.Decimal
	FeePct      decimal.Decimal
	NotionalUSD decimal.Decimal
	LatencyMs   int64
}

// Line is the guard's output: the full percent decomposition plus a
// one-line human-auditable summary.
type Line struct {
	GrossPct     decimal.Decimal
	FeesPct      decimal.Decimal
	SlipPct      decimal.Decimal
	GasPct       decimal.Decimal
	ThresholdPct decimal.Decimal
	NetPct       decimal.Decimal
	Why          string
}

// Guard checks legs against caller-defect conditions and computes the
// breakeven line. Pure; safe for concurrent use.
type Guard struct {
	MaxLegLatencyMs int64
}

// NewGuard returns a guard with the given per-leg latency cap in ms.
func NewGuard(maxLegLatencyMs int64) *Guard {
	return &Guard{MaxLegLatencyMs: maxLegLatencyMs}
}

var hundred = decimal.NewFromInt(100)

// Evaluate validates the legs in order (first violation wins) and produces
// the breakeven line. gasUnits and gasPrice are in quote-currency terms;
// thresholdPct below zero clamps to zero.
func (g *Guard) Evaluate(
	legs []Leg,
	grossPct decimal.Decimal,
	gasUnits uint64,
	gasPrice decimal.Decimal,
	totalNotional decimal.Decimal,
	thresholdPct decimal.Decimal,
) (Line, error) {
	for i, leg := range legs {
		if want := leg.Side.Expected(); leg.PriceSource != want {
			return Line{}, fmt.Errorf("%w: leg %d (%s %s) expected %q got %q",
				ErrPriceSourceMismatch, i, leg.Side, leg.Pair, want, leg.PriceSource)
		}
	}
	for i, leg := range legs {
		if leg.LatencyMs > g.MaxLegLatencyMs {
			return Line{}, fmt.Errorf("%w: leg %d (%s) latency %dms > max %dms",
				ErrLatencyExceeded, i, leg.Pair, leg.LatencyMs, g.MaxLegLatencyMs)
		}
	}
	for i, leg := range legs {
		if !leg.NotionalUSD.IsPositive() {
			return Line{}, fmt.Errorf("%w: leg %d (%s) notional %s",
				ErrNonPositiveNotional, i, leg.Pair, leg.NotionalUSD)
		}
	}

	var feesPct, slipPct decimal.Decimal
	for _, leg := range legs {
		feesPct = feesPct.Add(leg.FeePct)
		slipPct = slipPct.Add(leg.SlippagePct)
	}

	gasPct := decimal.Zero
	if totalNotional.IsPositive() {
		gasCost := decimal.NewFromUint64(gasUnits).Mul(gasPrice)
		gasPct = hundred.Mul(gasCost).Div(totalNotional)
	}

	if thresholdPct.IsNegative() {
		thresholdPct = decimal.Zero
	}

	netPct := grossPct.Sub(feesPct).Sub(slipPct).Sub(gasPct).Sub(thresholdPct)

	if netPct.IsPositive() {
		costs := feesPct.Add(slipPct).Add(gasPct).Add(thresholdPct)
		if !grossPct.GreaterThan(costs) {
			return Line{}, fmt.Errorf("%w: net=%s but gross=%s <= costs=%s",
				ErrInvariantViolated, netPct, grossPct, costs)
		}
	}

	line := Line{
		GrossPct:     grossPct,
		FeesPct:      feesPct,
		SlipPct:      slipPct,
		GasPct:       gasPct,
		ThresholdPct: thresholdPct,
		NetPct:       netPct,
	}
	line.Why = fmt.Sprintf("WHY breakeven_gross=%s%% (fees=%s%% slippage=%s%% gas=%s%% threshold=%s%%)",
		grossPct.StringFixed(2), feesPct.StringFixed(2), slipPct.StringFixed(2),
		gasPct.StringFixed(2), thresholdPct.StringFixed(2))
	return line, nil
}
