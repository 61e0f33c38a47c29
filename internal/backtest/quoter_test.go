package backtest

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// With the slippage model zeroed out, a quote must equal exactly what the
// engine credits when the same hop is executed.
func quoterEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := backtestConfig(7)
	cfg.Backtest.BaseSlippageBps = 0
	cfg.Backtest.ImpactBpsPer1kUSD = 0
	cfg.Backtest.JitterBps = 0
	return newTestEngine(t, cfg)
}

func TestTickQuoter_BuyDeductsFeeFromAmountOut(t *testing.T) {
	eng := quoterEngine(t)
	q := NewTickQuoter(eng, 20)

	// 2000.5 USDT at ask 2000.5 buys 1 WETH gross, 0.998 net of the fee.
	quote, err := q.QuoteHop(context.Background(), common.Address{}, "USDT", "WETH", decimal.RequireFromString("2000.5"))
	require.NoError(t, err)
	assert.Equal(t, types.SideBuy, quote.Side)
	assert.Equal(t, uint32(20), quote.FeeBps)
	assert.True(t, quote.AmountOut.Equal(decimal.RequireFromString("0.998")),
		"out=%s", quote.AmountOut)

	before := eng.Balance("WETH")
	order, err := eng.CreateOrder("WETH/USDT", types.SideBuy, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	assert.True(t, eng.Balance("WETH").Sub(before).Equal(quote.AmountOut),
		"quoted=%s credited=%s", quote.AmountOut, eng.Balance("WETH").Sub(before))
}

func TestTickQuoter_SellDeductsFeeFromAmountOut(t *testing.T) {
	eng := quoterEngine(t)
	q := NewTickQuoter(eng, 20)

	// 1 WETH at bid 1999.5 yields 1995.501 USDT after the 20 bps fee.
	quote, err := q.QuoteHop(context.Background(), common.Address{}, "WETH", "USDT", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, types.SideSell, quote.Side)
	assert.True(t, quote.AmountOut.Equal(decimal.RequireFromString("1995.501")),
		"out=%s", quote.AmountOut)

	before := eng.Balance("USDT")
	order, err := eng.CreateOrder("WETH/USDT", types.SideSell, OrderMarket, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	assert.True(t, eng.Balance("USDT").Sub(before).Equal(quote.AmountOut),
		"quoted=%s credited=%s", quote.AmountOut, eng.Balance("USDT").Sub(before))
}

func TestTickQuoter_NoMarket(t *testing.T) {
	eng := quoterEngine(t)
	q := NewTickQuoter(eng, 20)

	_, err := q.QuoteHop(context.Background(), common.Address{}, "USDT", "LINK", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no market")
}
