/*
Package metrics provides Prometheus metrics collection and exposition for shardmaild.

The metrics package defines and registers all shardmaild metrics using the
Prometheus client library, providing observability into election state,
replication progress, and storage/ORM performance. Metrics are exposed via
an HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                      │          │
	│  │  - Samples cluster.Coordinator on a ticker   │          │
	│  │  - Drains Coordinator.Subscribe() events     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Election:
  - shardmail_raft_is_leader (gauge): 1 if this node holds leadership, else 0
  - shardmail_raft_term (gauge): current election term
  - shardmail_raft_peers_total{online} (gauge): configured peers by online status
  - shardmail_elections_total{outcome} (counter): elections started, by outcome
  - shardmail_election_duration_seconds (histogram): StartElection to settled outcome

Replication:
  - shardmail_replication_lag_entries{peer} (gauge): entries a follower is behind
  - shardmail_append_logs_duration_seconds (histogram): time to ship one AppendLogs batch
  - shardmail_append_changes_duration_seconds (histogram): time to apply one AppendChanges merge
  - shardmail_synchronize_rounds_total (counter): Synchronize/Merge round trips against a diverged follower
  - shardmail_step_downs_total (counter): times this node stepped down from leadership

Storage / ORM:
  - shardmail_orm_merge_duration_seconds (histogram): orm.Merge diff time
  - shardmail_bitmap_cardinality{collection,index} (gauge): document ids in a secondary index bitmap
  - shardmail_log_append_duration_seconds (histogram): raftlog.Store.Append time
  - shardmail_log_entries_total (gauge): entries in the local raft log

# Usage

	import "github.com/cuemby/shardmail/pkg/metrics"

	metrics.RaftPeersTotal.WithLabelValues("true").Set(3)
	metrics.ElectionsTotal.WithLabelValues("won").Inc()

	timer := metrics.NewTimer()
	// ... apply a batch ...
	timer.ObserveDuration(metrics.AppendLogsDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/cluster: Collector samples Coordinator.MetricsSnapshot() and StepDown events
  - cmd/shardmaild: serves /metrics, /health, /ready, /live over HTTP

No other package records metrics: pkg/leader, pkg/storage and pkg/orm do
not import this package, and the duration histograms (such as
AppendLogsDuration) are registered but not observed anywhere in this
module.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
