package main

import (
	"net/http"

	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/metrics"
)

// serveMetrics starts the Prometheus/health HTTP server on addr. Mirrors
// the teacher's cmd/warren background metrics server exactly, swapping
// only the registered handler set (no pprof endpoints: the teacher gated
// those behind --enable-pprof for container-debugging; nothing here
// spawns the kind of long-lived worker goroutines that made profiling
// worth wiring into the CLI).
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	log.Info("shardmaild: metrics server listening on " + addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("shardmaild: metrics server error", err)
	}
}
