// Package numeric is the single source of truth for profit arithmetic.
// Everything here runs on base-10 decimals so repeated bps↔percent
// conversions and USD rounding reproduce exactly across consumers.
package numeric

import "github.com/shopspring/decimal"

func init() {
	// Non-exact divisions (gas pct, pnl) must carry at least 50 significant
	// digits before any rounding step.
	if decimal.DivisionPrecision < 50 {
		decimal.DivisionPrecision = 50
	}
}

var hundred = decimal.NewFromInt(100)

// PctToBps converts percent units to basis points (exact scale by 100).
func PctToBps(pct decimal.Decimal) decimal.Decimal {
	return pct.Mul(hundred)
}

// BpsToPct converts basis points to percent units (exact scale by 100).
func BpsToPct(bps decimal.Decimal) decimal.Decimal {
	return bps.Div(hundred)
}

// RoundToBps converts a percent value to the nearest integer basis point.
func RoundToBps(pct decimal.Decimal) int64 {
	return PctToBps(pct).Round(0).IntPart()
}

// RoundCents rounds a USD amount to 2 decimals, half to even.
func RoundCents(usd decimal.Decimal) decimal.Decimal {
	return usd.RoundBank(2)
}

// Breakdown is the canonical decomposition of a trade's profit. All fields
// are in percent units except PnLUSD.
type Breakdown struct {
	GrossPct  decimal.Decimal
	FeePct    decimal.Decimal
	SafetyPct decimal.Decimal
	GasPct    decimal.Decimal
	NetPct    decimal.Decimal
	PnLUSD    decimal.Decimal
}

// ComputeBreakdown derives the full profit breakdown from bps inputs plus gas
// and notional in USD. Gas percent is gasUSD/notional*100, zero when the
// notional is not positive. Net is gross - fee - safety - gas.
func ComputeBreakdown(grossBps, feeBps, safetyBps, gasUSD, notionalUSD decimal.Decimal) Breakdown {
	b := Breakdown{
		GrossPct:  BpsToPct(grossBps),
		FeePct:    BpsToPct(feeBps),
		SafetyPct: BpsToPct(safetyBps),
	}
	if notionalUSD.IsPositive() {
		b.GasPct = gasUSD.Div(notionalUSD).Mul(hundred)
	} else {
		b.GasPct = decimal.Zero
	}
	b.NetPct = b.GrossPct.Sub(b.FeePct).Sub(b.SafetyPct).Sub(b.GasPct)
	b.PnLUSD = b.NetPct.Div(hundred).Mul(notionalUSD)
	return b
}

// BreakdownsEqual reports whether two breakdowns agree field by field within
// tolBps basis points. Used to assert that independent consumers derived the
// same numbers from the same inputs.
func BreakdownsEqual(a, c Breakdown, tolBps decimal.Decimal) bool {
	tolPct := BpsToPct(tolBps)
	within := func(x, y decimal.Decimal) bool {
		return x.Sub(y).Abs().LessThanOrEqual(tolPct)
	}
	return within(a.GrossPct, c.GrossPct) &&
		within(a.FeePct, c.FeePct) &&
		within(a.SafetyPct, c.SafetyPct) &&
		within(a.GasPct, c.GasPct) &&
		within(a.NetPct, c.NetPct)
}
