// Package metrics exposes Prometheus counters and gauges for the
// engine, feed and publishing sinks.
package metrics

import (
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"venue"},
	)
	TicksRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ticks_rejected_total", Help: "Ticks discarded for predating the open bar"},
	)
	BarsSealedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bars_sealed_total", Help: "Base-interval bars sealed"},
	)
	SignalsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_created_total", Help: "Signals emitted past the score threshold"},
		[]string{"timeframe", "direction"},
	)
	SignalsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_resolved_total", Help: "Signals settled after their timeframe elapsed"},
		[]string{"timeframe", "status"},
	)
	SignalScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "signal_score", Help: "Latest call/put score per timeframe"},
		[]string{"timeframe", "side"},
	)
	SentimentScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sentiment_score", Help: "Decaying news sentiment scalar"},
	)
	PendingSignals = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pending_signals", Help: "Signals awaiting resolution"},
	)
	NewsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "news_events_total", Help: "News events applied to the sentiment tracker"},
		[]string{"sentiment"},
	)
	FeedReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Price feed reconnect attempts"},
		[]string{"provider"},
	)
	PublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "publish_errors_total", Help: "Failed writes to downstream sinks"},
		[]string{"sink"},
	)
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_requests_total", Help: "Prediction service requests by outcome"},
		[]string{"outcome"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "queue_depth", Help: "Buffered items in the engine queues"},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksRejectedTotal,
		BarsSealedTotal,
		SignalsCreatedTotal,
		SignalsResolvedTotal,
		SignalScore,
		SentimentScore,
		PendingSignals,
		NewsEventsTotal,
		FeedReconnectsTotal,
		PublishErrorsTotal,
		OracleRequestsTotal,
		QueueDepth,
	)
}

// Serve exposes /metrics and pprof on addr in the background. The
// listener is meant for an internal port, never the public API one.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
