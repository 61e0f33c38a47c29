package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side of a trade leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceSource tags which side of the book a leg's price was read from.
// A buy leg must price off the ask, a sell leg off the bid.
type PriceSource string

const (
	SourceAsk PriceSource = "ask"
	SourceBid PriceSource = "bid"
)

// Expected returns the price source a leg of the given side must use.
func (s Side) Expected() PriceSource {
	if s == SideBuy {
		return SourceAsk
	}
	return SourceBid
}

// Route is a static three-hop cycle base→mid→alt→base on a single venue.
// Loaded from config; the solver owns it for the lifetime of a scan.
type Route struct {
	Base  string
	Mid   string
	Alt   string
	Venue string
	Pools []common.Address
}

// Path returns the full cycle token path.
func (r Route) Path() []string {
	return []string{r.Base, r.Mid, r.Alt, r.Base}
}

// Opportunity is the solver's output for one successful route evaluation.
// Immutable once produced; NetBps is the single authoritative net figure.
type Opportunity struct {
	Route Route
	Path  []string

	// Amounts[0] is the notional in, Amounts[3] the final amount back in base.
	Amounts []decimal.Decimal

	GrossBps decimal.Decimal
	NetBps   decimal.Decimal

	GasCost GasCost
	GasUSD  decimal.Decimal

	LegSlippageBps   []decimal.Decimal
	TotalSlippageBps decimal.Decimal
	TotalFeeBps      decimal.Decimal

	BreakevenBeforeGasUSD decimal.Decimal
	BreakevenAfterGasUSD  decimal.Decimal

	BlockNumber uint64
	Ts          time.Time
}

// GasCost carries the native-token cost in smallest units plus the inputs it
// was derived from, so an audit trail can recompute it.
type GasCost struct {
	Units       uint64
	PriceWeiStr string // gas price in wei, decimal string
	TotalWeiStr string // units * price, decimal string
}

// RouteExecutionRecord is written once per accepted execution and read by the
// dedup manager on subsequent checks.
type RouteExecutionRecord struct {
	RouteID     string
	BlockOrTick uint64
	NetPct      decimal.Decimal
	ExecutedAt  time.Time
	Fingerprint string
}

// MarketTick is one row of historical market data. Immutable, ordered by
// timestamp per symbol.
type MarketTick struct {
	Ts     time.Time
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
	Volume decimal.Decimal
}
