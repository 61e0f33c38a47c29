package backtest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/solver"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// TickQuoter answers hop quotes from the engine's replayed ticks: buys price
// at the ask, sells at the bid, on whichever listed pair covers the token
// move. The taker fee comes off AmountOut, matching what the engine credits
// on settlement. Pool addresses are carried through for fingerprinting but
// play no role in pricing here.
type TickQuoter struct {
	eng     *Engine
	symbols map[string]bool
	feeBps  uint32
	keep    decimal.Decimal // fraction of output left after the fee
}

var _ solver.Quoter = (*TickQuoter)(nil)

func NewTickQuoter(eng *Engine, feeBps uint32) *TickQuoter {
	symbols := make(map[string]bool)
	for _, s := range eng.Symbols() {
		symbols[s] = true
	}
	keep := decimal.NewFromInt(10_000 - int64(feeBps)).Div(decimal.NewFromInt(10_000))
	return &TickQuoter{eng: eng, symbols: symbols, feeBps: feeBps, keep: keep}
}

func (q *TickQuoter) QuoteHop(_ context.Context, _ common.Address, tokenIn, tokenOut string, amountIn decimal.Decimal) (solver.HopQuote, error) {
	switch {
	case q.symbols[tokenOut+"/"+tokenIn]:
		tick, err := q.eng.FetchTicker(tokenOut + "/" + tokenIn)
		if err != nil {
			return solver.HopQuote{}, err
		}
		out := amountIn.Div(tick.Ask).Mul(q.keep)
		return solver.HopQuote{
			AmountOut:   out,
			Price:       out.Div(amountIn),
			Side:        types.SideBuy,
			PriceSource: types.SourceAsk,
			ImpactBps:   decimal.Zero,
			FeeBps:      q.feeBps,
		}, nil
	case q.symbols[tokenIn+"/"+tokenOut]:
		tick, err := q.eng.FetchTicker(tokenIn + "/" + tokenOut)
		if err != nil {
			return solver.HopQuote{}, err
		}
		out := amountIn.Mul(tick.Bid).Mul(q.keep)
		return solver.HopQuote{
			AmountOut:   out,
			Price:       out.Div(amountIn),
			Side:        types.SideSell,
			PriceSource: types.SourceBid,
			ImpactBps:   decimal.Zero,
			FeeBps:      q.feeBps,
		}, nil
	default:
		return solver.HopQuote{}, fmt.Errorf("backtest: no market for %s->%s", tokenIn, tokenOut)
	}
}
