package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPctBpsRoundTrip(t *testing.T) {
	cases := []string{"0", "0.01", "1.25", "-0.3", "100", "0.004999"}
	for _, s := range cases {
		pct := d(s)
		assert.True(t, BpsToPct(PctToBps(pct)).Equal(pct), "pct %s", s)
	}
}

func TestRoundToBps(t *testing.T) {
	assert.Equal(t, int64(125), RoundToBps(d("1.25")))
	assert.Equal(t, int64(125), RoundToBps(d("1.2503")))
	assert.Equal(t, int64(0), RoundToBps(d("0.004")))
	assert.Equal(t, int64(-90), RoundToBps(d("-0.9")))
}

func TestRoundCents_HalfToEven(t *testing.T) {
	assert.True(t, RoundCents(d("1.805")).Equal(d("1.80")))
	assert.True(t, RoundCents(d("1.815")).Equal(d("1.82")))
	assert.True(t, RoundCents(d("1.799")).Equal(d("1.80")))
}

func TestComputeBreakdown_Golden(t *testing.T) {
	b := ComputeBreakdown(d("125"), d("90"), d("2"), d("1.80"), d("1000"))

	assert.True(t, b.GrossPct.Equal(d("1.25")), "gross=%s", b.GrossPct)
	assert.True(t, b.FeePct.Equal(d("0.9")), "fee=%s", b.FeePct)
	assert.True(t, b.SafetyPct.Equal(d("0.02")), "safety=%s", b.SafetyPct)
	assert.True(t, b.GasPct.Equal(d("0.18")), "gas=%s", b.GasPct)
	assert.True(t, b.NetPct.Equal(d("0.15")), "net=%s", b.NetPct)
	assert.True(t, b.PnLUSD.Equal(d("1.50")), "pnl=%s", b.PnLUSD)
}

func TestComputeBreakdown_SafetyNotDoubled(t *testing.T) {
	b := ComputeBreakdown(d("125"), d("90"), d("1"), d("1.80"), d("1000"))
	assert.True(t, b.SafetyPct.Equal(d("0.01")), "safety=%s", b.SafetyPct)
}

func TestComputeBreakdown_ZeroNotional(t *testing.T) {
	b := ComputeBreakdown(d("125"), d("90"), d("2"), d("1.80"), decimal.Zero)
	assert.True(t, b.GasPct.IsZero(), "gas pct must be zero at zero notional")
	assert.True(t, b.PnLUSD.IsZero())

	neg := ComputeBreakdown(d("125"), d("90"), d("2"), d("1.80"), d("-5"))
	assert.True(t, neg.GasPct.IsZero())
}

func TestComputeBreakdown_GasInverseToNotional(t *testing.T) {
	at100 := ComputeBreakdown(d("0"), d("0"), d("0"), d("2.50"), d("100"))
	at1000 := ComputeBreakdown(d("0"), d("0"), d("0"), d("2.50"), d("1000"))
	require.False(t, at1000.GasPct.IsZero())
	ratio := at100.GasPct.Div(at1000.GasPct)
	assert.True(t, ratio.Equal(d("10")), "ratio=%s", ratio)
}

func TestBreakdownsEqual(t *testing.T) {
	a := ComputeBreakdown(d("125"), d("90"), d("2"), d("1.80"), d("1000"))
	b := ComputeBreakdown(d("125"), d("90"), d("2"), d("1.80"), d("1000"))
	assert.True(t, BreakdownsEqual(a, b, d("0")))

	// Nudge net by 0.6 bps: outside a 0.5 bps tolerance, inside 1 bps.
	c := b
	c.NetPct = c.NetPct.Add(d("0.006"))
	assert.False(t, BreakdownsEqual(a, c, d("0.5")))
	assert.True(t, BreakdownsEqual(a, c, d("1")))
}
