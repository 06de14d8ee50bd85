package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Election metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardmail_raft_is_leader",
			Help: "Whether this node currently holds leadership for its shard (1 = leader, 0 = not)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardmail_raft_term",
			Help: "Current election term",
		},
	)

	RaftPeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardmail_raft_peers_total",
			Help: "Number of configured peers by online status",
		},
		[]string{"online"},
	)

	ElectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardmail_elections_total",
			Help: "Total number of elections started, by outcome",
		},
		[]string{"outcome"},
	)

	ElectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardmail_election_duration_seconds",
			Help:    "Time from StartElection to a settled outcome (won/lost/timed out)",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Replication (leader-driver) metrics
	ReplicationLagEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardmail_replication_lag_entries",
			Help: "Log entries a follower is behind the leader's committed index",
		},
		[]string{"peer"},
	)

	AppendLogsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardmail_append_logs_duration_seconds",
			Help:    "Time to read and ship one AppendLogs batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	AppendChangesDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardmail_append_changes_duration_seconds",
			Help:    "Time to apply one AppendChanges merge step",
			Buckets: prometheus.DefBuckets,
		},
	)

	SynchronizeRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardmail_synchronize_rounds_total",
			Help: "Total number of Synchronize/Merge round trips driven against a diverged follower",
		},
	)

	StepDownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardmail_step_downs_total",
			Help: "Total number of times this node stepped down from leadership",
		},
	)

	// Storage / ORM metrics
	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardmail_orm_merge_duration_seconds",
			Help:    "Time taken by orm.Merge to diff a TinyORM snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	BitmapCardinality = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardmail_bitmap_cardinality",
			Help: "Number of document IDs in a collection's secondary index bitmap",
		},
		[]string{"collection", "index"},
	)

	LogAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardmail_log_append_duration_seconds",
			Help:    "Time taken by raftlog.Store.Append",
			Buckets: prometheus.DefBuckets,
		},
	)

	LogEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardmail_log_entries_total",
			Help: "Total number of entries in the local raft log",
		},
	)
)

func init() {
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftPeersTotal)
	prometheus.MustRegister(ElectionsTotal)
	prometheus.MustRegister(ElectionDuration)

	prometheus.MustRegister(ReplicationLagEntries)
	prometheus.MustRegister(AppendLogsDuration)
	prometheus.MustRegister(AppendChangesDuration)
	prometheus.MustRegister(SynchronizeRoundsTotal)
	prometheus.MustRegister(StepDownsTotal)

	prometheus.MustRegister(MergeDuration)
	prometheus.MustRegister(BitmapCardinality)
	prometheus.MustRegister(LogAppendDuration)
	prometheus.MustRegister(LogEntriesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
