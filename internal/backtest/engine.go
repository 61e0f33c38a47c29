package backtest

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/metrics"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// OrderType selects the fill-price rule.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus is the simulated order lifecycle state. partial never
// regresses to pending; filled, cancelled and failed are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusFailed    OrderStatus = "failed"
)

// FillRecord is one execution slice of a simulated order.
type FillRecord struct {
	Price  decimal.Decimal
	Amount decimal.Decimal // base units
	Fee    decimal.Decimal // charged on the receiving side, in its currency
	SimTs  time.Time
}

// SimulatedOrder is created by CreateOrder and mutated only by the engine.
type SimulatedOrder struct {
	ID         string
	Symbol     string // "BASE/QUOTE"
	Side       types.Side
	Type       OrderType
	LimitPrice decimal.Decimal
	Requested  decimal.Decimal
	Filled     decimal.Decimal
	Fills      []FillRecord
	Status     OrderStatus
	Err        string
}

// Report aggregates a run for post-run inspection.
type Report struct {
	OrdersCreated   int
	OrdersFilled    int
	OrdersPartial   int // orders that went through a partial phase
	OrdersFailed    int
	OrdersCancelled int
	FillRate        float64
	AvgSlippageBps  decimal.Decimal
	TotalVolumeUSD  decimal.Decimal
	SimStart        time.Time
	SimEnd          time.Time
	WallElapsed     time.Duration
	// WallToSimRatio is wall seconds spent per simulated second.
	WallToSimRatio float64
	FinalBalances  map[string]decimal.Decimal
}

// Engine replays historical ticks and simulates fills. It is strictly
// single-threaded: every random draw comes from one seeded source and every
// timestamp from the simulation clock, so a given data file, window and seed
// reproduce identical fills and balances. Not safe for concurrent use.
type Engine struct {
	cfg  *config.Config
	log  *zap.Logger
	rng  *rand.Rand
	data map[string][]types.MarketTick

	simTime   time.Time
	wallStart time.Time
	cursor    map[string]int
	balances  map[string]decimal.Decimal
	orders    map[string]*SimulatedOrder
	seq       uint64

	created, filled, partial, failed, cancelled int
	slipBpsSum                                  decimal.Decimal
	slipSamples                                 int64
	volumeUSD                                   decimal.Decimal
}

// NewEngine builds an engine over pre-loaded series. The simulation clock
// starts at the earliest tick across all symbols.
func NewEngine(cfg *config.Config, data map[string][]types.MarketTick, log *zap.Logger) (*Engine, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	var start time.Time
	for _, s := range data {
		if len(s) > 0 && (start.IsZero() || s[0].Ts.Before(start)) {
			start = s[0].Ts
		}
	}
	if start.IsZero() {
		return nil, ErrNoData
	}

	balances := make(map[string]decimal.Decimal, len(cfg.Backtest.InitialBalances))
	for sym, amt := range cfg.Backtest.InitialBalances {
		balances[sym] = decimal.NewFromFloat(amt)
	}

	return &Engine{
		cfg:       cfg,
		log:       log,
		rng:       rand.New(rand.NewSource(cfg.Backtest.Seed)),
		data:      data,
		simTime:   start,
		wallStart: time.Now(),
		cursor:    make(map[string]int, len(data)),
		balances:  balances,
		orders:    make(map[string]*SimulatedOrder),
	}, nil
}

// Now returns the current simulation time.
func (e *Engine) Now() time.Time { return e.simTime }

// Advance moves the simulation clock forward. When time_accel is set the
// call sleeps proportionally for human-observable pacing; the sleep never
// influences computed results.
func (e *Engine) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	e.simTime = e.simTime.Add(d)
	if a := e.cfg.Backtest.TimeAccel; a > 0 {
		time.Sleep(time.Duration(float64(d) / a))
	}
}

// FetchTicker returns the most recent tick for symbol at or before the
// simulation clock. A symbol with no tick yet is a data error, never a
// silent default. Cursors only move forward.
func (e *Engine) FetchTicker(symbol string) (types.MarketTick, error) {
	series, ok := e.data[symbol]
	if !ok {
		return types.MarketTick{}, fmt.Errorf("backtest: no data for symbol %s", symbol)
	}
	i := e.cursor[symbol]
	for i+1 < len(series) && !series[i+1].Ts.After(e.simTime) {
		i++
	}
	e.cursor[symbol] = i
	if series[i].Ts.After(e.simTime) {
		return types.MarketTick{}, fmt.Errorf("backtest: no tick for %s at or before %s",
			symbol, e.simTime.Format(time.RFC3339))
	}
	return series[i], nil
}

// Balance returns the simulated balance for a currency (zero when unseen).
func (e *Engine) Balance(currency string) decimal.Decimal {
	return e.balances[currency]
}

// CreateOrder simulates an order against the current tick. A nil error with
// Status failed means the fill model rejected the order or funds were short;
// a non-nil error means the market data could not answer the request.
func (e *Engine) CreateOrder(symbol string, side types.Side, typ OrderType, amount, limitPrice decimal.Decimal) (*SimulatedOrder, error) {
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("backtest: non-positive order amount %s", amount)
	}

	e.seq++
	order := &SimulatedOrder{
		ID:         fmt.Sprintf("sim-%06d", e.seq),
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		LimitPrice: limitPrice,
		Requested:  amount,
		Status:     StatusPending,
	}
	e.orders[order.ID] = order
	e.created++

	tick, err := e.FetchTicker(symbol)
	if err != nil {
		order.Status = StatusFailed
		order.Err = err.Error()
		e.failed++
		return order, err
	}

	// Draw order is fixed: rejection, slippage jitter, partial split,
	// then per-fill variance. Reordering breaks seed reproducibility.
	if e.rng.Float64() > e.cfg.Backtest.FillProbability {
		order.Status = StatusFailed
		order.Err = "rejected by fill model"
		e.failed++
		metrics.BacktestOrders.WithLabelValues("failed").Inc()
		return order, nil
	}

	basePrice := tick.Ask
	if side == types.SideSell {
		basePrice = tick.Bid
	}

	slipBps := e.drawSlippageBps(amount.Mul(basePrice))
	price := applySlippage(basePrice, side, slipBps)
	price = clampToLimit(price, side, typ, limitPrice)

	notional := amount.Mul(price)
	chunks := []decimal.Decimal{amount}
	threshold := decimal.NewFromFloat(e.cfg.Backtest.PartialFillThresholdUSD)
	if threshold.IsPositive() && notional.GreaterThan(threshold) {
		chunks = e.splitAmount(amount, 2+e.rng.Intn(3))
		order.Status = StatusPartial
		e.partial++
	}

	feeBps := decimal.NewFromFloat(e.cfg.Backtest.TakerFeeBps)
	if typ == OrderLimit {
		feeBps = decimal.NewFromFloat(e.cfg.Backtest.MakerFeeBps)
	}

	for i, chunk := range chunks {
		fillPrice := price
		if len(chunks) > 1 {
			// per-fill variance, same bounded jitter scale
			fillPrice = applySlippage(price, side, e.jitterBps())
			fillPrice = clampToLimit(fillPrice, side, typ, limitPrice)
		}
		if !e.settle(order, base, quote, chunk, fillPrice, feeBps) {
			e.failed++
			metrics.BacktestOrders.WithLabelValues("failed").Inc()
			return order, nil
		}
		if i < len(chunks)-1 {
			e.Advance(time.Duration(e.cfg.Backtest.InterFillDelayMs) * time.Millisecond)
		}
	}

	order.Status = StatusFilled
	e.filled++
	e.slipBpsSum = e.slipBpsSum.Add(slipBps)
	e.slipSamples++
	e.volumeUSD = e.volumeUSD.Add(order.notionalFilled())
	metrics.BacktestOrders.WithLabelValues("filled").Inc()

	e.log.Debug("simulated fill",
		zap.String("order", order.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("price", price.String()),
		zap.Int("fills", len(order.Fills)),
		zap.String("slip_bps", slipBps.StringFixed(2)),
	)
	return order, nil
}

// settle applies one fill to both legs atomically: base and quote move
// together, with the fee taken off the receiving side.
func (e *Engine) settle(order *SimulatedOrder, base, quote string, amount, price, feeBps decimal.Decimal) bool {
	cost := amount.Mul(price)
	feeRate := feeBps.Div(decimal.NewFromInt(10_000))

	var fee decimal.Decimal
	if order.Side == types.SideBuy {
		if e.balances[quote].LessThan(cost) {
			order.Status = StatusFailed
			order.Err = fmt.Sprintf("insufficient %s: need %s, have %s",
				quote, cost.StringFixed(8), e.balances[quote].StringFixed(8))
			return false
		}
		fee = amount.Mul(feeRate)
		e.balances[quote] = e.balances[quote].Sub(cost)
		e.balances[base] = e.balances[base].Add(amount.Sub(fee))
	} else {
		if e.balances[base].LessThan(amount) {
			order.Status = StatusFailed
			order.Err = fmt.Sprintf("insufficient %s: need %s, have %s",
				base, amount.StringFixed(8), e.balances[base].StringFixed(8))
			return false
		}
		fee = cost.Mul(feeRate)
		e.balances[base] = e.balances[base].Sub(amount)
		e.balances[quote] = e.balances[quote].Add(cost.Sub(fee))
	}

	order.Filled = order.Filled.Add(amount)
	order.Fills = append(order.Fills, FillRecord{
		Price:  price,
		Amount: amount,
		Fee:    fee,
		SimTs:  e.simTime,
	})
	return true
}

// CancelOrder cancels a pending or partial order. Terminal orders cannot be
// cancelled.
func (e *Engine) CancelOrder(id string) error {
	order, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("backtest: order not found: %s", id)
	}
	switch order.Status {
	case StatusPending, StatusPartial:
		order.Status = StatusCancelled
		e.cancelled++
		metrics.BacktestOrders.WithLabelValues("cancelled").Inc()
		return nil
	default:
		return fmt.Errorf("backtest: cannot cancel %s order %s", order.Status, id)
	}
}

// Order returns a copy of a simulated order by id.
func (e *Engine) Order(id string) (SimulatedOrder, bool) {
	o, ok := e.orders[id]
	if !ok {
		return SimulatedOrder{}, false
	}
	return *o, true
}

// Metrics summarizes the run so far.
func (e *Engine) Metrics() Report {
	rep := Report{
		OrdersCreated:   e.created,
		OrdersFilled:    e.filled,
		OrdersPartial:   e.partial,
		OrdersFailed:    e.failed,
		OrdersCancelled: e.cancelled,
		TotalVolumeUSD:  e.volumeUSD,
		SimEnd:          e.simTime,
		WallElapsed:     time.Since(e.wallStart),
		FinalBalances:   make(map[string]decimal.Decimal, len(e.balances)),
	}
	for _, s := range e.data {
		if len(s) > 0 && (rep.SimStart.IsZero() || s[0].Ts.Before(rep.SimStart)) {
			rep.SimStart = s[0].Ts
		}
	}
	if e.created > 0 {
		rep.FillRate = float64(e.filled) / float64(e.created)
	}
	if e.slipSamples > 0 {
		rep.AvgSlippageBps = e.slipBpsSum.Div(decimal.NewFromInt(e.slipSamples))
	}
	if simElapsed := rep.SimEnd.Sub(rep.SimStart); simElapsed > 0 {
		rep.WallToSimRatio = rep.WallElapsed.Seconds() / simElapsed.Seconds()
	}
	for c, b := range e.balances {
		rep.FinalBalances[c] = b
	}
	return rep
}

// drawSlippageBps models execution cost: a fixed base, a size-impact term
// proportional to notional (capped), and a bounded random jitter.
func (e *Engine) drawSlippageBps(notionalUSD decimal.Decimal) decimal.Decimal {
	bt := &e.cfg.Backtest
	impact := notionalUSD.Div(decimal.NewFromInt(1000)).Mul(decimal.NewFromFloat(bt.ImpactBpsPer1kUSD))
	capBps := decimal.NewFromFloat(bt.ImpactCapBps)
	if capBps.IsPositive() && impact.GreaterThan(capBps) {
		impact = capBps
	}
	slip := decimal.NewFromFloat(bt.BaseSlippageBps).Add(impact).Add(e.jitterBps())
	if slip.IsNegative() {
		slip = decimal.Zero
	}
	return slip
}

// jitterBps draws a uniform value in [-jitter_bps, +jitter_bps].
func (e *Engine) jitterBps() decimal.Decimal {
	j := e.cfg.Backtest.JitterBps
	if j <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat((2*e.rng.Float64() - 1) * j)
}

// splitAmount cuts amount into n random-weighted chunks that sum exactly to
// amount (the last chunk absorbs rounding).
func (e *Engine) splitAmount(amount decimal.Decimal, n int) []decimal.Decimal {
	weights := make([]float64, n)
	var sum float64
	for i := range weights {
		weights[i] = 0.5 + e.rng.Float64()
		sum += weights[i]
	}
	chunks := make([]decimal.Decimal, n)
	rest := amount
	for i := 0; i < n-1; i++ {
		c := amount.Mul(decimal.NewFromFloat(weights[i] / sum)).Round(12)
		chunks[i] = c
		rest = rest.Sub(c)
	}
	chunks[n-1] = rest
	return chunks
}

func (o *SimulatedOrder) notionalFilled() decimal.Decimal {
	var total decimal.Decimal
	for _, f := range o.Fills {
		total = total.Add(f.Price.Mul(f.Amount))
	}
	return total
}

// applySlippage moves price against the taker: up for buys, down for sells.
func applySlippage(price decimal.Decimal, side types.Side, slipBps decimal.Decimal) decimal.Decimal {
	frac := slipBps.Div(decimal.NewFromInt(10_000))
	if side == types.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(frac))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(frac))
}

// clampToLimit caps a limit order's execution price at its limit: buys never
// pay above it, sells never receive below it.
func clampToLimit(price decimal.Decimal, side types.Side, typ OrderType, limit decimal.Decimal) decimal.Decimal {
	if typ != OrderLimit || limit.LessThanOrEqual(decimal.Zero) {
		return price
	}
	if side == types.SideBuy && price.GreaterThan(limit) {
		return limit
	}
	if side == types.SideSell && price.LessThan(limit) {
		return limit
	}
	return price
}

// Symbols returns the loaded symbols in deterministic order.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.data))
	for s := range e.data {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("backtest: bad symbol %q, want BASE/QUOTE", symbol)
	}
	return parts[0], parts[1], nil
}
