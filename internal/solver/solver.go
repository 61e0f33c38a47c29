// Package solver evaluates configured three-hop routes against supplied
// swap estimates and produces gated opportunities.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/breakeven"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/metrics"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/numeric"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// ErrNoLongerValid is returned by RefreshAndRevalidate when a previously
// emitted opportunity fails re-evaluation against a fresh snapshot.
var ErrNoLongerValid = errors.New("opportunity no longer valid")

// HopQuote is one hop's swap estimate from a venue adapter.
type HopQuote struct {
	AmountOut decimal.Decimal
	Price     decimal.Decimal // effective price used for the hop

	Side        types.Side
	PriceSource types.PriceSource

	ImpactBps decimal.Decimal // price-impact signal on top of base slippage
	FeeBps    uint32          // pool fee tier already applied to AmountOut
	LatencyMs int64
}

// Quoter supplies swap-output estimates per hop. Implementations wrap a
// chain-reading client, static pool reserves, or historical ticks.
type Quoter interface {
	QuoteHop(ctx context.Context, pool common.Address, tokenIn, tokenOut string, amountIn decimal.Decimal) (HopQuote, error)
}

// Snapshot is the externally acquired market state one evaluation runs
// against. Never patch a stale snapshot; take a fresh one.
type Snapshot struct {
	GasPriceWei *big.Int
	NativeUSD   decimal.Decimal
	BlockNumber uint64
	Taken       time.Time
}

// Rejection is an expected filtering outcome, distinguishable from defects.
type Rejection struct {
	Stage  string
	Reason string
}

// Rejection stages.
const (
	StageLegSlippage   = "leg_slippage"
	StageTotalSlippage = "total_slippage"
	StageProfitFloor   = "profit_floor"
)

type Solver struct {
	cfg    *config.Config
	quoter Quoter
	guard  *breakeven.Guard
	log    *zap.Logger
}

func New(cfg *config.Config, quoter Quoter, guard *breakeven.Guard, log *zap.Logger) *Solver {
	return &Solver{cfg: cfg, quoter: quoter, guard: guard, log: log}
}

var tenThousand = decimal.NewFromInt(10000)

// Evaluate runs one route at the given notional (quote units) against one
// snapshot. Exactly one of the three results is set: an opportunity, an
// expected rejection, or an error (caller defect or data error).
func (s *Solver) Evaluate(ctx context.Context, route types.Route, notional decimal.Decimal, snap Snapshot) (*types.Opportunity, *Rejection, error) {
	if !notional.IsPositive() {
		return nil, nil, fmt.Errorf("notional must be positive, got %s", notional)
	}
	if len(route.Pools) != 3 {
		return nil, nil, fmt.Errorf("route %s-%s-%s: want 3 pools, got %d", route.Base, route.Mid, route.Alt, len(route.Pools))
	}

	path := route.Path()
	amounts := make([]decimal.Decimal, 0, 4)
	amounts = append(amounts, notional)

	baseSlip := decimal.NewFromFloat(s.cfg.Risk.BaseSlippageBps)
	maxLeg := decimal.NewFromFloat(s.cfg.Risk.MaxLegSlippageBps)
	maxTotal := decimal.NewFromFloat(s.cfg.Risk.MaxTotalSlippageBps)

	legs := make([]breakeven.Leg, 0, 3)
	legSlips := make([]decimal.Decimal, 0, 3)
	totalSlip := decimal.Zero
	var totalFeeBps int64

	for hop := 0; hop < 3; hop++ {
		in, out := path[hop], path[hop+1]
		q, err := s.quoter.QuoteHop(ctx, route.Pools[hop], in, out, amounts[hop])
		if err != nil {
			return nil, nil, fmt.Errorf("quote hop %d %s→%s: %w", hop, in, out, err)
		}

		// Conservative per-leg estimate: fixed base plus the quoter's
		// price-impact signal.
		slip := baseSlip.Add(q.ImpactBps)
		if slip.GreaterThan(maxLeg) {
			rej := &Rejection{
				Stage:  StageLegSlippage,
				Reason: fmt.Sprintf("hop %d %s→%s slippage %s bps > cap %s", hop, in, out, slip.StringFixed(1), maxLeg.StringFixed(1)),
			}
			metrics.RoutesRejected.WithLabelValues(rej.Stage).Inc()
			return nil, rej, nil
		}

		legs = append(legs, breakeven.Leg{
			Pair:        in + "/" + out,
			Side:        q.Side,
			Price:       q.Price,
			PriceSource: q.PriceSource,
			DepthLevels: 1,
			SlippagePct: numeric.BpsToPct(slip),
			FeePct:      numeric.BpsToPct(decimal.NewFromInt(int64(q.FeeBps))),
			NotionalUSD: notional,
			LatencyMs:   q.LatencyMs,
		})
		legSlips = append(legSlips, slip)
		totalSlip = totalSlip.Add(slip)
		totalFeeBps += int64(q.FeeBps)
		amounts = append(amounts, q.AmountOut)
	}

	if totalSlip.GreaterThan(maxTotal) {
		rej := &Rejection{
			Stage:  StageTotalSlippage,
			Reason: fmt.Sprintf("cycle slippage %s bps > cap %s", totalSlip.StringFixed(1), maxTotal.StringFixed(1)),
		}
		metrics.RoutesRejected.WithLabelValues(rej.Stage).Inc()
		return nil, rej, nil
	}

	grossProfit := amounts[3].Sub(notional)
	grossBps := grossProfit.Div(notional).Mul(tenThousand)

	gasUnits := s.cfg.GasLimit()
	gasWei := new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), snap.GasPriceWei)
	gasUSD := decimal.NewFromBigInt(gasWei, -18).Mul(snap.NativeUSD)

	// Pool fees are already inside the hop outputs, so the authoritative net
	// subtracts only slippage and gas from gross; TotalFeeBps stays metadata.
	bd := numeric.ComputeBreakdown(grossBps, totalSlip, decimal.Zero, gasUSD, notional)
	breakevenAfterGas := bd.PnLUSD
	slippageCost := notional.Mul(totalSlip).Div(tenThousand)
	breakevenBeforeGas := grossProfit.Sub(slippageCost)
	netBps := numeric.PctToBps(bd.NetPct)

	// Audit the leg set; a failure here is a caller defect, not a filter.
	threshold := numeric.BpsToPct(decimal.NewFromFloat(s.cfg.Risk.MinProfitBps + s.cfg.Risk.SafetyMarginBps))
	gasPerUnit := decimal.Zero
	if gasUnits > 0 {
		gasPerUnit = gasUSD.Div(decimal.NewFromUint64(gasUnits))
	}
	line, err := s.guard.Evaluate(legs, numeric.BpsToPct(grossBps), gasUnits, gasPerUnit, notional, threshold)
	if err != nil {
		return nil, nil, err
	}
	s.log.Debug(line.Why,
		zap.String("route", route.Base+"-"+route.Mid+"-"+route.Alt),
		zap.String("venue", route.Venue))

	minProfit := notional.Mul(decimal.NewFromFloat(s.cfg.Risk.MinProfitBps)).Div(tenThousand)
	if breakevenAfterGas.LessThan(minProfit) {
		rej := &Rejection{
			Stage:  StageProfitFloor,
			Reason: fmt.Sprintf("breakeven after gas %s < floor %s", breakevenAfterGas.StringFixed(4), minProfit.StringFixed(4)),
		}
		metrics.RoutesRejected.WithLabelValues(rej.Stage).Inc()
		return nil, rej, nil
	}

	opp := &types.Opportunity{
		Route:   route,
		Path:    path,
		Amounts: amounts,

		GrossBps: grossBps,
		NetBps:   netBps,

		GasCost: types.GasCost{
			Units:       gasUnits,
			PriceWeiStr: snap.GasPriceWei.String(),
			TotalWeiStr: gasWei.String(),
		},
		GasUSD: gasUSD,

		LegSlippageBps:   legSlips,
		TotalSlippageBps: totalSlip,
		TotalFeeBps:      decimal.NewFromInt(totalFeeBps),

		BreakevenBeforeGasUSD: breakevenBeforeGas,
		BreakevenAfterGasUSD:  breakevenAfterGas,

		BlockNumber: snap.BlockNumber,
		Ts:          snap.Taken,
	}
	return opp, nil, nil
}

// Scan evaluates every route and returns those above the profit floor,
// sorted descending by net bps.
func (s *Solver) Scan(ctx context.Context, routes []types.Route, notional decimal.Decimal, snap Snapshot) ([]types.Opportunity, error) {
	start := time.Now()
	defer func() { metrics.ScanLatency.Observe(time.Since(start).Seconds()) }()

	var opps []types.Opportunity
	for _, r := range routes {
		opp, rej, err := s.Evaluate(ctx, r, notional, snap)
		if err != nil {
			return nil, err
		}
		if rej != nil {
			s.log.Debug("route rejected",
				zap.String("route", r.Base+"-"+r.Mid+"-"+r.Alt),
				zap.String("stage", rej.Stage),
				zap.String("reason", rej.Reason))
			continue
		}
		metrics.OpportunitiesFound.Inc()
		opps = append(opps, *opp)
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].NetBps.GreaterThan(opps[j].NetBps)
	})
	if len(opps) > 0 {
		best, _ := opps[0].NetBps.Float64()
		metrics.BestNetBps.Set(best)
		gas, _ := opps[0].GasUSD.Float64()
		metrics.GasUSD.Set(gas)
	}
	return opps, nil
}

// RefreshAndRevalidate re-runs the full evaluation against a fresh snapshot
// immediately before execution. It fails when the opportunity no longer
// clears the gates and warns (non-fatally) when net profit declined by more
// than 20% versus the original estimate.
func (s *Solver) RefreshAndRevalidate(ctx context.Context, opp *types.Opportunity, snap Snapshot) (*types.Opportunity, error) {
	fresh, rej, err := s.Evaluate(ctx, opp.Route, opp.Amounts[0], snap)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNoLongerValid, rej.Reason, rej.Stage)
	}

	floor := opp.NetBps.Mul(decimal.NewFromFloat(0.8))
	if fresh.NetBps.LessThan(floor) {
		s.log.Warn("net profit declined more than 20% since original estimate",
			zap.String("route", opp.Route.Base+"-"+opp.Route.Mid+"-"+opp.Route.Alt),
			zap.String("was_bps", opp.NetBps.StringFixed(2)),
			zap.String("now_bps", fresh.NetBps.StringFixed(2)))
	}
	return fresh, nil
}
