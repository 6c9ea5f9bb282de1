// Package appmetrics exposes the Prometheus gauges/counters referenced
// in SPEC_FULL's ambient observability stack: collector batch sizes,
// drop counts, and correlator cycle durations, served loopback-only
// per §6 (the operator-facing surface is local by default).
package appmetrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// CollectorRowsInserted counts rows committed per cycle, per tool.
	CollectorRowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_collector_rows_inserted_total",
		Help: "Rows inserted by a collector cycle, by tool.",
	}, []string{"tool"})

	// CollectorRowsDropped counts rows truncated by the per-cycle ceiling.
	CollectorRowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_collector_rows_dropped_total",
		Help: "Rows dropped because a cycle's batch exceeded the per-cycle ceiling, by tool.",
	}, []string{"tool"})

	// CollectorCycleErrors counts failed collector cycles, by tool.
	CollectorCycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_collector_cycle_errors_total",
		Help: "Collector cycles that returned an error, by tool.",
	}, []string{"tool"})

	// CorrelatorCycleDuration observes wall-clock time per correlator pass.
	CorrelatorCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netguard_correlator_cycle_duration_seconds",
		Help:    "Wall-clock duration of one correlator cycle, by correlator name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"correlator"})

	// AIProviderAttempts counts dispatch attempts per provider/outcome.
	AIProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_ai_provider_attempts_total",
		Help: "AI provider dispatch attempts, by provider and outcome (success|failure|skipped).",
	}, []string{"provider", "outcome"})
)

// ObserveCycle times fn and records its duration under correlator.
func ObserveCycle(correlator string, fn func() error) error {
	start := time.Now()
	err := fn()
	CorrelatorCycleDuration.WithLabelValues(correlator).Observe(time.Since(start).Seconds())
	return err
}

// Serve starts an HTTP server on addr (a loopback address by the CLI's
// default) exposing /metrics and /healthz, shutting down when ctx is
// cancelled.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("appmetrics: shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("appmetrics: metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn().Err(err).Msg("appmetrics: server stopped unexpectedly")
	}
}
