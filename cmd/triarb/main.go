package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/amm"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/audit"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/backtest"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/breakeven"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/dedup"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/execution"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/feed"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/logging"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/metrics"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/risk"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/solver"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

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
	if len(routes) == 0 {
		logger.Fatal("no routes configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("signal received, shutting down")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, logger)

	quoter, err := amm.NewPoolQuoter(cfg.Pools)
	if err != nil {
		logger.Fatal("pool quoter init", zap.Error(err))
	}

	guard := breakeven.NewGuard(cfg.Risk.MaxLegLatencyMs)
	slv := solver.New(cfg, quoter, guard, logger)
	gate := dedup.NewManager(dedup.Config{
		FingerprintTTL: cfg.FingerprintTTL(),
		Cooldown:       cfg.DedupCooldown(),
		HysteresisPct:  decimal.NewFromFloat(cfg.Dedup.HysteresisPct),
	})

	// The snapshot holder is updated by the scan loop and read by the
	// executor's revalidation.
	var (
		snapMu   sync.Mutex
		lastSnap solver.Snapshot
	)
	snapFn := func() solver.Snapshot {
		snapMu.Lock()
		defer snapMu.Unlock()
		return lastSnap
	}

	oppCh := make(chan types.Opportunity, 1024)

	if cfg.DryRun {
		logger.Warn("DRY-RUN: opportunities are logged, never executed")
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case opp := <-oppCh:
					logger.Info("opportunity",
						zap.Strings("path", opp.Path),
						zap.String("gross_bps", opp.GrossBps.StringFixed(2)),
						zap.String("net_bps", opp.NetBps.StringFixed(2)),
						zap.String("gas_usd", opp.GasUSD.StringFixed(2)),
						zap.Uint64("block", opp.BlockNumber),
					)
				}
			}
		}()
	} else {
		var placerEng *backtest.Engine
		if cfg.Backtest.DataFile == "" {
			logger.Fatal("paper execution needs backtest.data_file for fills")
		}
		data, err := backtest.LoadCSV(cfg.Backtest.DataFile, time.Time{}, time.Time{})
		if err != nil {
			logger.Fatal("load fill data", zap.Error(err))
		}
		placerEng, err = backtest.NewEngine(cfg, data, logger)
		if err != nil {
			logger.Fatal("simulation engine init", zap.Error(err))
		}

		exec := execution.NewExecutor(cfg, slv, gate,
			execution.NewPaperPlacer(placerEng, logger), snapFn, logger).
			WithRisk(risk.NewEngine(cfg))
		if cfg.Audit.Path != "" {
			store, err := audit.Open(cfg.Audit.Path)
			if err != nil {
				logger.Fatal("audit store init", zap.Error(err))
			}
			exec = exec.WithAudit(store)
		}
		if cfg.Redis.Addr != "" {
			pub := feed.NewPublisher(cfg)
			defer pub.Close()
			exec = exec.WithFeed(pub)
		}
		go exec.Run(ctx, oppCh)
	}

	notional := decimal.NewFromFloat(cfg.Trade.NotionalUSD)
	logger.Info("scanner started",
		zap.Int("routes", len(routes)),
		zap.String("mode", cfg.Mode),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("notional_usd", notional.String()),
	)

	ticker := time.NewTicker(cfg.ScanInterval())
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			snap := solver.Snapshot{
				GasPriceWei: cfg.GasPriceWei(),
				NativeUSD:   decimal.NewFromFloat(cfg.Gas.NativeUSD),
				BlockNumber: tick,
				Taken:       time.Now(),
			}
			snapMu.Lock()
			lastSnap = snap
			snapMu.Unlock()

			opps, err := slv.Scan(ctx, routes, notional, snap)
			if err != nil {
				logger.Error("scan failed", zap.Error(err))
				continue
			}
			for _, opp := range opps {
				select {
				case oppCh <- opp:
				default:
					logger.Warn("opportunity channel full; dropping",
						zap.Strings("path", opp.Path))
				}
			}
		}
	}
}
