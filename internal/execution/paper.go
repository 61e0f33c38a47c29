package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/backtest"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// PaperPlacer executes cycles against the simulation engine. Each hop
// becomes a market order on whichever listed pair covers the token move,
// bought or sold as the listing direction requires.
type PaperPlacer struct {
	eng     *backtest.Engine
	symbols map[string]bool
	log     *zap.Logger
}

func NewPaperPlacer(eng *backtest.Engine, log *zap.Logger) *PaperPlacer {
	symbols := make(map[string]bool)
	for _, s := range eng.Symbols() {
		symbols[s] = true
	}
	return &PaperPlacer{eng: eng, symbols: symbols, log: log}
}

var _ OrderPlacer = (*PaperPlacer)(nil)

// PlaceCycle runs the three hops in sequence. A hop whose order does not
// fully fill aborts the cycle; balances keep whatever the earlier hops did,
// exactly as a live venue would leave them.
func (p *PaperPlacer) PlaceCycle(ctx context.Context, opp *types.Opportunity) (CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}

	base := opp.Path[0]
	before := p.eng.Balance(base)

	var (
		ids  []string
		last *backtest.SimulatedOrder
	)
	for i := 0; i < 3; i++ {
		in, out := opp.Path[i], opp.Path[i+1]

		var (
			order *backtest.SimulatedOrder
			err   error
		)
		switch {
		case p.symbols[out+"/"+in]:
			order, err = p.eng.CreateOrder(out+"/"+in, types.SideBuy, backtest.OrderMarket, opp.Amounts[i+1], decimal.Zero)
		case p.symbols[in+"/"+out]:
			// Earlier hops pay fees out of the intermediate leg, so the
			// planned amount can slightly exceed what we actually hold.
			amt := opp.Amounts[i]
			if held := p.eng.Balance(in); held.LessThan(amt) {
				amt = held
			}
			order, err = p.eng.CreateOrder(in+"/"+out, types.SideSell, backtest.OrderMarket, amt, decimal.Zero)
		default:
			return CycleResult{OrderIDs: ids}, fmt.Errorf("execution: no market for hop %s->%s", in, out)
		}
		if err != nil {
			return CycleResult{OrderIDs: ids}, err
		}
		if order.Status != backtest.StatusFilled {
			return CycleResult{OrderIDs: ids}, fmt.Errorf("execution: hop %d order %s: %s (%s)",
				i, order.ID, order.Status, order.Err)
		}

		ids = append(ids, order.ID)
		last = order
		p.log.Debug("paper hop filled",
			zap.Int("hop", i),
			zap.String("order", order.ID),
			zap.String("symbol", order.Symbol),
			zap.String("side", string(order.Side)),
		)
	}

	after := p.eng.Balance(base)
	return CycleResult{
		OrderIDs:       ids,
		FinalAmount:    receivedAmount(last),
		RealizedNetUSD: after.Sub(before),
	}, nil
}

// receivedAmount is what the final hop credited: the filled base amount net
// of fees for a buy, the quote proceeds net of fees for a sell.
func receivedAmount(o *backtest.SimulatedOrder) decimal.Decimal {
	var total decimal.Decimal
	for _, f := range o.Fills {
		if o.Side == types.SideBuy {
			total = total.Add(f.Amount.Sub(f.Fee))
		} else {
			total = total.Add(f.Price.Mul(f.Amount).Sub(f.Fee))
		}
	}
	return total
}
