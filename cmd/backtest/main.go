package main

import (
	"context"
	"flag"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/backtest"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/breakeven"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/dedup"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/execution"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/logging"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/risk"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/solver"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// arbStrategy evaluates the configured routes on every tick and hands
// anything profitable straight to the executor. Everything runs on the
// engine's simulation clock, so a fixed seed reproduces the run exactly.
type arbStrategy struct {
	cfg      *config.Config
	routes   []types.Route
	slv      *solver.Solver
	exec     *execution.Executor
	notional decimal.Decimal
	log      *zap.Logger

	tick uint64
	snap solver.Snapshot
}

func (s *arbStrategy) Name() string { return "triangular" }

func (s *arbStrategy) OnTick(ctx context.Context, eng *backtest.Engine, _ types.MarketTick) error {
	s.tick++
	s.snap = solver.Snapshot{
		GasPriceWei: s.cfg.GasPriceWei(),
		NativeUSD:   decimal.NewFromFloat(s.cfg.Gas.NativeUSD),
		BlockNumber: s.tick,
		Taken:       eng.Now(),
	}

	opps, err := s.slv.Scan(ctx, s.routes, s.notional, s.snap)
	if err != nil {
		return err
	}
	for i := range opps {
		if err := s.exec.Process(ctx, &opps[i]); err != nil {
			s.log.Warn("execution failed", zap.Error(err))
		}
	}
	return nil
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	routes, err := cfg.ParsedRoutes()
	if err != nil {
		logger.Fatal("bad route config", zap.Error(err))
	}

	start, end, err := window(cfg)
	if err != nil {
		logger.Fatal("bad backtest window", zap.Error(err))
	}
	data, err := backtest.LoadCSV(cfg.Backtest.DataFile, start, end)
	if err != nil {
		logger.Fatal("load market data", zap.Error(err))
	}
	eng, err := backtest.NewEngine(cfg, data, logger)
	if err != nil {
		logger.Fatal("engine init", zap.Error(err))
	}

	quoter := backtest.NewTickQuoter(eng, uint32(cfg.Backtest.TakerFeeBps))
	slv := solver.New(cfg, quoter, breakeven.NewGuard(cfg.Risk.MaxLegLatencyMs), logger)
	gate := dedup.NewManager(dedup.Config{
		FingerprintTTL: cfg.FingerprintTTL(),
		Cooldown:       cfg.DedupCooldown(),
		HysteresisPct:  decimal.NewFromFloat(cfg.Dedup.HysteresisPct),
	})

	strat := &arbStrategy{
		cfg:      cfg,
		routes:   routes,
		slv:      slv,
		notional: decimal.NewFromFloat(cfg.Trade.NotionalUSD),
		log:      logger,
	}
	strat.exec = execution.NewExecutor(cfg, slv, gate,
		execution.NewPaperPlacer(eng, logger), func() solver.Snapshot { return strat.snap }, logger).
		WithRisk(risk.NewEngine(cfg)).
		WithClock(eng.Now)

	rep, err := backtest.NewRunner(eng, strat, logger).Run(context.Background())
	if err != nil {
		logger.Fatal("backtest run", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("orders_created", rep.OrdersCreated),
		zap.Int("orders_filled", rep.OrdersFilled),
		zap.Int("orders_partial", rep.OrdersPartial),
		zap.Int("orders_failed", rep.OrdersFailed),
		zap.Float64("fill_rate", rep.FillRate),
		zap.String("avg_slippage_bps", rep.AvgSlippageBps.StringFixed(2)),
		zap.String("volume_usd", rep.TotalVolumeUSD.StringFixed(2)),
		zap.Duration("wall_elapsed", rep.WallElapsed),
		zap.Float64("wall_to_sim_ratio", rep.WallToSimRatio),
	}
	for cur, bal := range rep.FinalBalances {
		fields = append(fields, zap.String("balance_"+cur, bal.StringFixed(8)))
	}
	logger.Info("backtest complete", fields...)
}

func window(cfg *config.Config) (start, end time.Time, err error) {
	if cfg.Backtest.Start != "" {
		if start, err = time.Parse(time.RFC3339, cfg.Backtest.Start); err != nil {
			return
		}
	}
	if cfg.Backtest.End != "" {
		end, err = time.Parse(time.RFC3339, cfg.Backtest.End)
	}
	return
}
