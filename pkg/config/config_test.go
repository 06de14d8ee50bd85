package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
node_id: 1
shard_id: 1
cluster_id: test-cluster
bind_addr: 127.0.0.1:7946
data_dir: /var/lib/shardmail
peers:
  - peer_id: 2
    addr: 127.0.0.1:7947
  - peer_id: 3
    addr: 127.0.0.1:7948
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shardmail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.NodeID)
	require.Equal(t, "test-cluster", cfg.ClusterID)
	require.Len(t, cfg.Peers, 2)
}

func TestLoadMissingNodeID(t *testing.T) {
	path := writeConfig(t, `
shard_id: 1
cluster_id: test-cluster
bind_addr: 127.0.0.1:7946
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadDefaultsDataDir(t *testing.T) {
	path := writeConfig(t, `
node_id: 1
cluster_id: test-cluster
bind_addr: 127.0.0.1:7946
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./shardmail-data", cfg.DataDir)
}

func TestValidateRejectsPeerCollidingWithNodeID(t *testing.T) {
	cfg := &Config{NodeID: 1, ClusterID: "c", BindAddr: "a", Peers: []PeerSeed{{PeerID: 1, Addr: "x"}}}
	require.Error(t, cfg.Validate())
}

func TestToPeersStartsOffline(t *testing.T) {
	cfg := &Config{ShardID: 5, Peers: []PeerSeed{{PeerID: 2, Addr: "127.0.0.1:1"}}}
	peers := cfg.ToPeers()
	require.Len(t, peers, 1)
	require.False(t, peers[0].Online)
	require.Equal(t, uint32(5), peers[0].ShardID)
}
