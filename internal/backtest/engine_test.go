package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

const sampleCSV = `timestamp,symbol,bid,ask,last,volume
1700000000,WETH/USDT,1999.5,2000.5,2000.0,120.5
1700000000,WBTC/USDT,34990,35010,35000,8.2
1700000010,WETH/USDT,2001.0,2002.0,2001.5,98.1
1700000020,WETH/USDT,2003.0,2004.0,2003.5,110.0
1700000020,WBTC/USDT,35050,35070,35060,5.5
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func backtestConfig(seed int64) *config.Config {
	cfg := &config.Config{}
	bt := &cfg.Backtest
	bt.Seed = seed
	bt.FillProbability = 1.0
	bt.BaseSlippageBps = 5
	bt.ImpactBpsPer1kUSD = 0.5
	bt.ImpactCapBps = 30
	bt.JitterBps = 2
	bt.PartialFillThresholdUSD = 50_000
	bt.InterFillDelayMs = 100
	bt.MakerFeeBps = 10
	bt.TakerFeeBps = 20
	bt.InitialBalances = map[string]float64{"USDT": 100_000, "WETH": 10}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	data, err := LoadCSV(writeSample(t), time.Time{}, time.Time{})
	require.NoError(t, err)
	eng, err := NewEngine(cfg, data, zap.NewNop())
	require.NoError(t, err)
	return eng
}

func TestLoadCSV(t *testing.T) {
	path := writeSample(t)

	data, err := LoadCSV(path, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, data["WETH/USDT"], 3)
	assert.Len(t, data["WBTC/USDT"], 2)
	assert.True(t, data["WETH/USDT"][0].Bid.Equal(decimal.RequireFromString("1999.5")))

	// Window keeps only the middle tick.
	data, err = LoadCSV(path, time.Unix(1_700_000_005, 0), time.Unix(1_700_000_015, 0))
	require.NoError(t, err)
	assert.Len(t, data["WETH/USDT"], 1)
	_, ok := data["WBTC/USDT"]
	assert.False(t, ok)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), time.Time{}, time.Time{})
	require.Error(t, err)
}

func TestLoadCSV_EmptyWindow(t *testing.T) {
	_, err := LoadCSV(writeSample(t), time.Unix(1_800_000_000, 0), time.Time{})
	require.ErrorIs(t, err, ErrNoData)
}

func TestFetchTicker(t *testing.T) {
	eng := newTestEngine(t, backtestConfig(1))

	// Clock starts at the earliest tick.
	tick, err := eng.FetchTicker("WETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), tick.Ts.Unix())

	// Advancing past the second tick returns it, not the third.
	eng.Advance(12 * time.Second)
	tick, err = eng.FetchTicker("WETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_010), tick.Ts.Unix())

	_, err = eng.FetchTicker("DOGE/USDT")
	require.Error(t, err)
}

func TestFetchTicker_NoTickYet(t *testing.T) {
	cfg := backtestConfig(1)
	data := map[string][]types.MarketTick{
		"WETH/USDT": {{Ts: time.Unix(100, 0), Symbol: "WETH/USDT", Bid: decimal.New(1999, 0), Ask: decimal.New(2001, 0)}},
		"WBTC/USDT": {{Ts: time.Unix(500, 0), Symbol: "WBTC/USDT", Bid: decimal.New(34990, 0), Ask: decimal.New(35010, 0)}},
	}
	eng, err := NewEngine(cfg, data, zap.NewNop())
	require.NoError(t, err)

	// Clock is at t=100; WBTC has no tick yet.
	_, err = eng.FetchTicker("WBTC/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tick")
}

func TestCreateOrder_MarketBuy(t *testing.T) {
	cfg := backtestConfig(7)
	cfg.Backtest.JitterBps = 0 // deterministic arithmetic below
	eng := newTestEngine(t, cfg)

	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	require.Len(t, order.Fills, 1)

	fill := order.Fills[0]
	// Buys pay the ask plus slippage.
	assert.True(t, fill.Price.GreaterThan(decimal.RequireFromString("2000.5")), "price=%s", fill.Price)

	// Quote debited by price*qty, base credited net of the taker fee.
	wantUSDT := decimal.NewFromInt(100_000).Sub(fill.Price)
	assert.True(t, eng.Balance("USDT").Equal(wantUSDT), "usdt=%s want=%s", eng.Balance("USDT"), wantUSDT)

	feeRate := decimal.RequireFromString("0.002") // 20 bps
	wantWETH := decimal.NewFromInt(10).Add(decimal.NewFromInt(1).Sub(decimal.NewFromInt(1).Mul(feeRate)))
	assert.True(t, eng.Balance("WETH").Equal(wantWETH), "weth=%s want=%s", eng.Balance("WETH"), wantWETH)
}

func TestCreateOrder_MarketSell(t *testing.T) {
	cfg := backtestConfig(7)
	cfg.Backtest.JitterBps = 0
	eng := newTestEngine(t, cfg)

	order, err := eng.CreateOrder("WETH/USDT", types.SideSell, OrderMarket, decimal.NewFromInt(2), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)

	fill := order.Fills[0]
	// Sells hit the bid minus slippage.
	assert.True(t, fill.Price.LessThan(decimal.RequireFromString("1999.5")), "price=%s", fill.Price)
	assert.True(t, eng.Balance("WETH").Equal(decimal.NewFromInt(8)))

	gross := fill.Price.Mul(decimal.NewFromInt(2))
	net := gross.Sub(gross.Mul(decimal.RequireFromString("0.002")))
	assert.True(t, eng.Balance("USDT").Equal(decimal.NewFromInt(100_000).Add(net)))
}

func TestCreateOrder_LimitClamp(t *testing.T) {
	cfg := backtestConfig(7)
	eng := newTestEngine(t, cfg)

	limit := decimal.RequireFromString("2000.6")
	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderLimit, decimal.NewFromInt(1), limit)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	for _, f := range order.Fills {
		assert.True(t, f.Price.LessThanOrEqual(limit), "fill %s above limit", f.Price)
	}
}

func TestCreateOrder_FillProbabilityRejection(t *testing.T) {
	cfg := backtestConfig(7)
	cfg.Backtest.FillProbability = 0
	eng := newTestEngine(t, cfg)

	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, order.Status)
	assert.Equal(t, "rejected by fill model", order.Err)
	assert.True(t, eng.Balance("USDT").Equal(decimal.NewFromInt(100_000)), "balances untouched")
}

func TestCreateOrder_PartialFills(t *testing.T) {
	cfg := backtestConfig(3)
	cfg.Backtest.InitialBalances["USDT"] = 500_000
	eng := newTestEngine(t, cfg)

	// ~$200k notional, well over the $50k threshold.
	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(100), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	require.GreaterOrEqual(t, len(order.Fills), 2)
	require.LessOrEqual(t, len(order.Fills), 4)

	var sum decimal.Decimal
	for _, f := range order.Fills {
		sum = sum.Add(f.Amount)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(100)), "fills sum=%s", sum)

	// Inter-fill delay advanced the simulated clock.
	first, last := order.Fills[0].SimTs, order.Fills[len(order.Fills)-1].SimTs
	assert.True(t, last.After(first))
}

func TestCreateOrder_InsufficientBalance(t *testing.T) {
	cfg := backtestConfig(7)
	cfg.Backtest.InitialBalances = map[string]float64{"USDT": 100}
	eng := newTestEngine(t, cfg)

	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, order.Status)
	assert.Contains(t, order.Err, "insufficient USDT")
}

func TestCancelOrder(t *testing.T) {
	cfg := backtestConfig(7)
	eng := newTestEngine(t, cfg)

	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)

	// Filled is terminal.
	require.Error(t, eng.CancelOrder(order.ID))
	require.Error(t, eng.CancelOrder("sim-999999"))
}

func TestMetricsReport(t *testing.T) {
	cfg := backtestConfig(7)
	eng := newTestEngine(t, cfg)

	_, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	_, err = eng.CreateOrder("WETH/USDT", types.SideSell, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)

	rep := eng.Metrics()
	assert.Equal(t, 2, rep.OrdersCreated)
	assert.Equal(t, 2, rep.OrdersFilled)
	assert.Equal(t, 1.0, rep.FillRate)
	assert.True(t, rep.TotalVolumeUSD.GreaterThan(decimal.NewFromInt(3000)))
	assert.True(t, rep.AvgSlippageBps.GreaterThan(decimal.Zero))
	assert.False(t, rep.FinalBalances["USDT"].IsZero())
}

// Two runs with the same seed, data and order sequence must produce
// byte-identical fills and balances.
func TestDeterminism(t *testing.T) {
	run := func() ([]SimulatedOrder, map[string]decimal.Decimal) {
		cfg := backtestConfig(42)
		cfg.Backtest.InitialBalances = map[string]float64{"USDT": 500_000, "WETH": 200}
		cfg.Backtest.FillProbability = 0.7
		eng := newTestEngine(t, cfg)

		var orders []SimulatedOrder
		for i := 0; i < 20; i++ {
			side := types.SideBuy
			if i%2 == 1 {
				side = types.SideSell
			}
			o, err := eng.CreateOrder("WETH/USDT", side, OrderMarket, decimal.NewFromInt(int64(1+i%5)*10), decimal.Zero)
			require.NoError(t, err)
			orders = append(orders, *o)
			eng.Advance(time.Second)
		}
		return orders, eng.Metrics().FinalBalances
	}

	orders1, bal1 := run()
	orders2, bal2 := run()

	require.Equal(t, len(orders1), len(orders2))
	for i := range orders1 {
		a, b := orders1[i], orders2[i]
		require.Equal(t, a.Status, b.Status, "order %d", i)
		require.Equal(t, len(a.Fills), len(b.Fills), "order %d", i)
		for j := range a.Fills {
			assert.True(t, a.Fills[j].Price.Equal(b.Fills[j].Price), "order %d fill %d", i, j)
			assert.True(t, a.Fills[j].Amount.Equal(b.Fills[j].Amount), "order %d fill %d", i, j)
			assert.True(t, a.Fills[j].SimTs.Equal(b.Fills[j].SimTs), "order %d fill %d", i, j)
		}
	}
	require.Equal(t, len(bal1), len(bal2))
	for c, b := range bal1 {
		assert.True(t, b.Equal(bal2[c]), "balance %s: %s vs %s", c, b, bal2[c])
	}
}

type countingStrategy struct {
	ticks  int
	orders int
}

func (s *countingStrategy) Name() string { return "counting" }

func (s *countingStrategy) OnTick(_ context.Context, eng *Engine, tick types.MarketTick) error {
	s.ticks++
	if tick.Symbol == "WETH/USDT" {
		if _, err := eng.CreateOrder(tick.Symbol, types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero); err != nil {
			return err
		}
		s.orders++
	}
	return nil
}

func TestRunner(t *testing.T) {
	cfg := backtestConfig(9)
	eng := newTestEngine(t, cfg)
	strat := &countingStrategy{}

	rep, err := NewRunner(eng, strat, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, strat.ticks)
	assert.Equal(t, 3, strat.orders)
	assert.Equal(t, 3, rep.OrdersCreated)
	// Clock ended at the last tick.
	assert.Equal(t, int64(1_700_000_020), rep.SimEnd.Unix())
}
