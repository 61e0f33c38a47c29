package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OpportunitiesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triarb_opportunities_total",
		Help: "Routes that cleared the profit floor",
	})

	RoutesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triarb_routes_rejected_total",
		Help: "Route evaluations rejected, by stage",
	}, []string{"stage"})

	BestNetBps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "triarb_best_net_bps",
		Help: "Net bps of the best opportunity in the last scan",
	})

	GasUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "triarb_gas_usd",
		Help: "Estimated gas cost in USD for one cycle",
	})

	ScanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "triarb_scan_latency_seconds",
		Help:    "Time to evaluate all configured routes",
		Buckets: prometheus.DefBuckets,
	})

	DedupRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triarb_dedup_rejections_total",
		Help: "Executions blocked by the dedup manager, by reason",
	}, []string{"reason"})

	BacktestOrders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triarb_backtest_orders_total",
		Help: "Simulated orders by terminal status",
	}, []string{"status"})

	Executions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triarb_executions_total",
		Help: "Opportunities that passed all gates and were executed",
	})
)

func init() {
	prometheus.MustRegister(
		OpportunitiesFound,
		RoutesRejected,
		BestNetBps,
		GasUSD,
		ScanLatency,
		DedupRejections,
		BacktestOrders,
		Executions,
	)
}
