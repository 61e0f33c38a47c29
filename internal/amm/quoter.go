package amm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/solver"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// PoolState is one constant-product pool the quoter prices against.
type PoolState struct {
	Addr      common.Address
	Token0    string
	Token1    string
	Reserve0  *big.Int // smallest units
	Reserve1  *big.Int
	FeeBps    uint32
	Decimals0 int32
	Decimals1 int32
}

// PoolQuoter prices hops from in-memory pool reserves using the
// constant-product formula. It backs paper and dry-run modes, where the
// chain-reading collaborator is replaced by configured reserves.
type PoolQuoter struct {
	mu    sync.RWMutex
	pools map[common.Address]*PoolState
}

var _ solver.Quoter = (*PoolQuoter)(nil)

// NewPoolQuoter builds a quoter from config pool blocks.
func NewPoolQuoter(cfgs []config.PoolCfg) (*PoolQuoter, error) {
	q := &PoolQuoter{pools: make(map[common.Address]*PoolState, len(cfgs))}
	for i, pc := range cfgs {
		if !common.IsHexAddress(pc.Address) {
			return nil, fmt.Errorf("pool %d: bad address %q", i, pc.Address)
		}
		r0, ok := new(big.Int).SetString(pc.Reserve0, 10)
		if !ok {
			return nil, fmt.Errorf("pool %d: bad reserve0 %q", i, pc.Reserve0)
		}
		r1, ok := new(big.Int).SetString(pc.Reserve1, 10)
		if !ok {
			return nil, fmt.Errorf("pool %d: bad reserve1 %q", i, pc.Reserve1)
		}
		d0, d1 := pc.Decimals0, pc.Decimals1
		if d0 == 0 {
			d0 = 18
		}
		if d1 == 0 {
			d1 = 18
		}
		addr := common.HexToAddress(pc.Address)
		q.pools[addr] = &PoolState{
			Addr:      addr,
			Token0:    strings.ToUpper(pc.Token0),
			Token1:    strings.ToUpper(pc.Token1),
			Reserve0:  r0,
			Reserve1:  r1,
			FeeBps:    pc.FeeBps,
			Decimals0: d0,
			Decimals1: d1,
		}
	}
	return q, nil
}

// SetReserves replaces a pool's reserves, e.g. between simulated blocks.
func (q *PoolQuoter) SetReserves(addr common.Address, reserve0, reserve1 *big.Int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pools[addr]
	if !ok {
		return fmt.Errorf("unknown pool %s", addr.Hex())
	}
	p.Reserve0 = new(big.Int).Set(reserve0)
	p.Reserve1 = new(big.Int).Set(reserve1)
	return nil
}

// QuoteHop implements solver.Quoter. The price-impact signal is the input's
// share of the in-side reserve in bps; AMM hops always sell the in token, so
// legs are tagged sell/bid.
func (q *PoolQuoter) QuoteHop(_ context.Context, pool common.Address, tokenIn, tokenOut string, amountIn decimal.Decimal) (solver.HopQuote, error) {
	q.mu.RLock()
	p, ok := q.pools[pool]
	q.mu.RUnlock()
	if !ok {
		return solver.HopQuote{}, fmt.Errorf("unknown pool %s", pool.Hex())
	}

	var (
		rIn, rOut     *big.Int
		decIn, decOut int32
	)
	switch {
	case strings.EqualFold(tokenIn, p.Token0) && strings.EqualFold(tokenOut, p.Token1):
		rIn, rOut, decIn, decOut = p.Reserve0, p.Reserve1, p.Decimals0, p.Decimals1
	case strings.EqualFold(tokenIn, p.Token1) && strings.EqualFold(tokenOut, p.Token0):
		rIn, rOut, decIn, decOut = p.Reserve1, p.Reserve0, p.Decimals1, p.Decimals0
	default:
		return solver.HopQuote{}, fmt.Errorf("pool %s does not trade %s/%s", pool.Hex(), tokenIn, tokenOut)
	}

	inUnits := ToUnits(amountIn, decIn)
	outUnits := AmountOut(inUnits, rIn, rOut, p.FeeBps)
	out := FromUnits(outUnits, decOut)

	impact := decimal.Zero
	if rIn.Sign() > 0 && inUnits.Sign() > 0 {
		impact = decimal.NewFromBigInt(inUnits, 0).
			Div(decimal.NewFromBigInt(rIn, 0)).
			Mul(decimal.NewFromInt(10000))
	}

	price := decimal.Zero
	if amountIn.IsPositive() {
		price = out.Div(amountIn)
	}

	return solver.HopQuote{
		AmountOut:   out,
		Price:       price,
		Side:        types.SideSell,
		PriceSource: types.SourceBid,
		ImpactBps:   impact,
		FeeBps:      p.FeeBps,
	}, nil
}
