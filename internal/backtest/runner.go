package backtest

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// Strategy receives every tick in chronological order and may place
// simulated orders against the engine.
type Strategy interface {
	// OnTick is called once per tick after the simulation clock has
	// advanced to the tick's timestamp.
	OnTick(ctx context.Context, eng *Engine, tick types.MarketTick) error

	// Name returns the strategy identifier for reporting.
	Name() string
}

// Runner drives a strategy over the engine's loaded data.
type Runner struct {
	engine   *Engine
	strategy Strategy
	log      *zap.Logger
}

// NewRunner wires a strategy to an engine.
func NewRunner(engine *Engine, strategy Strategy, log *zap.Logger) *Runner {
	return &Runner{engine: engine, strategy: strategy, log: log}
}

// Run replays all ticks across all symbols in timestamp order, advancing the
// simulation clock to each tick before handing it to the strategy. Ties are
// broken by symbol so replay order is deterministic.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	ticks := r.merged()
	r.log.Info("backtest run starting",
		zap.String("strategy", r.strategy.Name()),
		zap.Int("ticks", len(ticks)),
		zap.Int("symbols", len(r.engine.Symbols())),
	)

	for _, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return r.engine.Metrics(), err
		}
		if d := tick.Ts.Sub(r.engine.Now()); d > 0 {
			r.engine.Advance(d)
		}
		if err := r.strategy.OnTick(ctx, r.engine, tick); err != nil {
			return r.engine.Metrics(), err
		}
	}

	rep := r.engine.Metrics()
	r.log.Info("backtest run finished",
		zap.String("strategy", r.strategy.Name()),
		zap.Int("orders", rep.OrdersCreated),
		zap.Int("filled", rep.OrdersFilled),
		zap.Float64("fill_rate", rep.FillRate),
		zap.String("volume_usd", rep.TotalVolumeUSD.StringFixed(2)),
	)
	return rep, nil
}

func (r *Runner) merged() []types.MarketTick {
	var all []types.MarketTick
	for _, sym := range r.engine.Symbols() {
		all = append(all, r.engine.data[sym]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Ts.Equal(all[j].Ts) {
			return all[i].Symbol < all[j].Symbol
		}
		return all[i].Ts.Before(all[j].Ts)
	})
	return all
}
