package types

// PeerID uniquely identifies a peer within a cluster.
type PeerID = uint64

// ShardID identifies the shard (replica set) a peer belongs to.
type ShardID = uint32

// Peer is this node's view of another cluster member. Tasks that
// communicate with a peer (the leader-replication driver, the RPC reader
// loop) hold only message sinks (RequestCh / the rpc.Client), never a
// reference back to the cluster coordinator -- see DESIGN.md "cyclic
// graphs" note and spec.md §9.
type Peer struct {
	PeerID       PeerID
	ShardID      ShardID
	Addr         string
	LastLogIndex LogIndex
	LastLogTerm  TermID
	VoteGranted  bool
	// Online is maintained by the RPC layer (connection up/down) and by
	// pkg/health's TCP probe; it gates whether this node will even attempt
	// to solicit this peer's vote.
	Online bool
}

// IsInShard reports whether the peer replicates the given shard.
func (p *Peer) IsInShard(shardID ShardID) bool {
	return p.ShardID == shardID
}

// IsOffline is the negation of Online, kept as a named predicate because
// the election/replication code reads better phrased either way depending
// on context (mirrors peer.is_offline() in the source).
func (p *Peer) IsOffline() bool {
	return !p.Online
}

func (p *Peer) String() string {
	return p.Addr
}
