package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/shardmail/pkg/cluster"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestCoordinatorForMetrics(t *testing.T, cfg cluster.Config) *cluster.Coordinator {
	t.Helper()
	cfg.NodeID = 1
	path := filepath.Join(t.TempDir(), "raft.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := raftlog.Open(db)
	require.NoError(t, err)

	c, err := cluster.NewCoordinator(cfg, store)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCollectorSamplesLeaderAndTerm(t *testing.T) {
	c := newTestCoordinatorForMetrics(t, cluster.Config{ShardID: 1, Peers: []*types.Peer{
		{PeerID: 2, ShardID: 1, Online: true},
		{PeerID: 3, ShardID: 1, Online: false},
	}})

	col := NewCollector(c)
	col.Start()
	defer col.Stop()

	require.Eventually(t, func() bool {
		online := testutil.ToFloat64(RaftPeersTotal.WithLabelValues("true"))
		offline := testutil.ToFloat64(RaftPeersTotal.WithLabelValues("false"))
		return online == 1 && offline == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCollectorStopUnsubscribesWithoutPanic(t *testing.T) {
	c := newTestCoordinatorForMetrics(t, cluster.Config{ShardID: 1})

	col := NewCollector(c)
	col.Start()
	require.NotPanics(t, col.Stop)
}
