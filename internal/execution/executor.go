package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/dedup"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/metrics"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/numeric"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/risk"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/solver"
	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// CycleResult reports what a placer actually did for one three-hop cycle.
type CycleResult struct {
	OrderIDs       []string
	FinalAmount    decimal.Decimal // base units received back
	RealizedNetUSD decimal.Decimal
}

// OrderPlacer executes a validated opportunity against a venue. The paper
// placer routes through the simulation engine; a live placer would sign and
// send transactions.
type OrderPlacer interface {
	PlaceCycle(ctx context.Context, opp *types.Opportunity) (CycleResult, error)
}

// AuditSink persists accepted opportunities and executions.
type AuditSink interface {
	AppendOpportunity(routeID string, opp *types.Opportunity) error
	AppendExecution(rec types.RouteExecutionRecord) error
}

// FeedSink publishes accepted opportunities to external consumers.
type FeedSink interface {
	PublishOpportunity(ctx context.Context, routeID string, opp *types.Opportunity) error
}

// SnapshotFunc supplies a fresh market snapshot for revalidation.
type SnapshotFunc func() solver.Snapshot

// Executor is the single writer in front of the dedup manager: it gates,
// revalidates and places opportunities one at a time.
type Executor struct {
	cfg    *config.Config
	solver *solver.Solver
	gate   *dedup.Manager
	placer OrderPlacer
	snap   SnapshotFunc
	risk   *risk.Engine // optional
	audit  AuditSink    // optional
	feed   FeedSink     // optional
	log    *zap.Logger
	now    func() time.Time
}

func NewExecutor(cfg *config.Config, s *solver.Solver, gate *dedup.Manager, placer OrderPlacer, snap SnapshotFunc, log *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		solver: s,
		gate:   gate,
		placer: placer,
		snap:   snap,
		log:    log,
		now:    time.Now,
	}
}

// WithRisk attaches a session risk engine.
func (e *Executor) WithRisk(r *risk.Engine) *Executor { e.risk = r; return e }

// WithClock overrides the executor's time source. Replay callers pass the
// simulation clock so cooldowns and fingerprint TTLs age in simulated time,
// not wall time.
func (e *Executor) WithClock(now func() time.Time) *Executor { e.now = now; return e }

// WithAudit attaches an audit sink.
func (e *Executor) WithAudit(a AuditSink) *Executor { e.audit = a; return e }

// WithFeed attaches a feed sink.
func (e *Executor) WithFeed(f FeedSink) *Executor { e.feed = f; return e }

// Run consumes opportunities until the context is cancelled.
func (e *Executor) Run(ctx context.Context, in <-chan types.Opportunity) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp := <-in:
			if err := e.Process(ctx, &opp); err != nil {
				e.log.Error("execution failed", zap.Error(err))
			}
		}
	}
}

// Process takes one opportunity through the full gate-revalidate-place
// sequence. Gating rejections and stale opportunities are logged and
// swallowed; only placer and sink failures surface as errors.
func (e *Executor) Process(ctx context.Context, opp *types.Opportunity) error {
	routeID := dedup.NormalizeRouteID(opp.Path, opp.Route.Pools)
	netPct := numeric.BpsToPct(opp.NetBps)
	fp := dedup.Fingerprint(routeID, opp.BlockNumber,
		opp.GrossBps.Round(0).IntPart(), opp.TotalFeeBps.Round(0).IntPart(), opp.GasUSD)

	decision := e.gate.ShouldExecute(routeID, fp, opp.BlockNumber, netPct, e.now())
	if !decision.Allowed {
		metrics.DedupRejections.WithLabelValues(decision.Stage).Inc()
		e.log.Debug("execution gated",
			zap.String("route", routeID),
			zap.String("reason", decision.Reason),
		)
		return nil
	}

	if e.risk != nil {
		ok, reason := e.risk.AllowTrade(opp.BreakevenAfterGasUSD, opp.Amounts[0])
		if !ok {
			metrics.RoutesRejected.WithLabelValues("risk").Inc()
			e.log.Warn("risk engine blocked execution",
				zap.String("route", routeID),
				zap.String("reason", reason),
			)
			return nil
		}
	}

	fresh, err := e.solver.RefreshAndRevalidate(ctx, opp, e.snap())
	if err != nil {
		if errors.Is(err, solver.ErrNoLongerValid) {
			e.log.Info("opportunity stale, skipping",
				zap.String("route", routeID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	result, err := e.placer.PlaceCycle(ctx, fresh)
	if e.risk != nil {
		e.risk.RecordResult(err == nil, fresh.Amounts[0])
	}
	if err != nil {
		return err
	}

	rec := types.RouteExecutionRecord{
		RouteID:     routeID,
		BlockOrTick: fresh.BlockNumber,
		NetPct:      numeric.BpsToPct(fresh.NetBps),
		ExecutedAt:  e.now(),
		Fingerprint: fp,
	}
	e.gate.RecordExecution(rec.RouteID, rec.Fingerprint, rec.BlockOrTick, rec.NetPct, rec.ExecutedAt)
	metrics.Executions.Inc()

	e.log.Info("EXECUTED",
		zap.String("route", routeID),
		zap.String("net_bps", fresh.NetBps.StringFixed(2)),
		zap.String("realized_net_usd", result.RealizedNetUSD.StringFixed(2)),
		zap.Strings("orders", result.OrderIDs),
		zap.Uint64("block", fresh.BlockNumber),
	)

	if e.audit != nil {
		if err := e.audit.AppendOpportunity(routeID, fresh); err != nil {
			e.log.Warn("audit opportunity write failed", zap.Error(err))
		}
		if err := e.audit.AppendExecution(rec); err != nil {
			e.log.Warn("audit execution write failed", zap.Error(err))
		}
	}
	if e.feed != nil {
		if err := e.feed.PublishOpportunity(ctx, routeID, fresh); err != nil {
			e.log.Warn("feed publish failed", zap.Error(err))
		}
	}
	return nil
}
