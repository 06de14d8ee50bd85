package cluster

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/shardmail/pkg/events"
	"github.com/cuemby/shardmail/pkg/leader"
	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/raftstate"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
)

// ApplyEntries replays a batch of replicated log entries against local
// storage, returning the index of the last entry actually applied. Owned
// by whatever wires pkg/storage into this node; nil is valid for a
// coordinator under test that never needs to apply anything.
type ApplyEntries func(entries []types.LogEntry) (lastIndex types.LogIndex, err error)

// Config holds the parameters needed to build a Coordinator.
type Config struct {
	NodeID   types.PeerID
	ShardID  types.ShardID
	BindAddr string
	Peers    []*types.Peer

	TLSConfig *tls.Config

	PrepareChanges leader.PrepareChanges
	PrepareBlobs   leader.PrepareBlobs
	ApplyEntries   ApplyEntries

	// WorkerPoolSize bounds concurrent blocking store calls offloaded
	// from driver goroutines (spec.md §5's spawn_worker pool). Defaults
	// to 4 if unset.
	WorkerPoolSize int

	// ElectionPollInterval controls how often the election timer is
	// checked. Defaults to 50ms if unset.
	ElectionPollInterval time.Duration
}

// Coordinator is the single owner of one node's raft-like election
// state, its peer connections, and the leader-replication drivers
// spawned while this node leads. Modeled on the teacher's
// pkg/manager.Manager: one struct, one constructor, explicit Run/Close.
type Coordinator struct {
	cfg Config

	node    *raftstate.Node
	log     *raftlog.Store
	broker  *events.Broker
	workers *WorkerPool
	mutexes *MutexMap

	applyEntries ApplyEntries

	eventCh chan *events.Event

	mu          sync.Mutex
	peerClients map[types.PeerID]*rpc.Client
	peerOnline  map[types.PeerID]*watch.Value[bool]
	followers   map[types.PeerID]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator builds a Coordinator wired to store. Run must be called
// to start its background loops.
func NewCoordinator(cfg Config, store *raftlog.Store) (*Coordinator, error) {
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.ElectionPollInterval == 0 {
		cfg.ElectionPollInterval = 50 * time.Millisecond
	}

	lastLog, err := store.LastLog()
	if err != nil {
		return nil, fmt.Errorf("cluster: failed to read last log on startup: %w", err)
	}

	rnd := func(lo, hi int) int { return lo + rand.Intn(hi-lo+1) }
	node := raftstate.New(cfg.NodeID, cfg.ShardID, rnd)
	node.Peers = cfg.Peers
	node.LastLog = lastLog

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		cfg:          cfg,
		node:         node,
		log:          store,
		broker:       events.NewBroker(),
		workers:      NewWorkerPool(cfg.WorkerPoolSize),
		mutexes:      NewMutexMap(),
		applyEntries: cfg.ApplyEntries,
		eventCh:      make(chan *events.Event, 256),
		peerClients:  make(map[types.PeerID]*rpc.Client),
		peerOnline:   make(map[types.PeerID]*watch.Value[bool]),
		followers:    make(map[types.PeerID]context.CancelFunc),
		ctx:          ctx,
		cancel:       cancel,
	}
	node.SpawnFollower = c.spawnFollower
	return c, nil
}

// Node exposes the underlying election state machine for read-only
// inspection (status/peers CLI commands).
func (c *Coordinator) Node() *raftstate.Node { return c.node }

// Mutexes exposes the per-account lock map to the ORM layer.
func (c *Coordinator) Mutexes() *MutexMap { return c.mutexes }

// Run starts the event broker, the event-consuming loop, and the
// election timer, blocking until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.broker.Start()
	defer c.broker.Stop()

	go c.eventLoop()
	go c.electionLoop()
	go c.RunPeerWatchdog(c.ctx)
	if c.cfg.BindAddr != "" {
		go func() {
			if err := c.Serve(c.ctx); err != nil {
				log.Errorf("cluster: peer listener stopped", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
	c.Close()
}

// Close stops every follower driver and tears down peer connections.
func (c *Coordinator) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.followers {
		cancel()
	}
	for _, client := range c.peerClients {
		_ = client.Close()
	}
}

// Subscribe taps the coordinator's event stream (metrics, CLI streaming).
func (c *Coordinator) Subscribe() events.Subscriber { return c.broker.Subscribe() }

// Unsubscribe removes a subscription previously returned by Subscribe.
func (c *Coordinator) Unsubscribe(sub events.Subscriber) { c.broker.Unsubscribe(sub) }

func (c *Coordinator) peerClient(peer *types.Peer) *rpc.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.peerClients[peer.PeerID]; ok {
		return cl
	}
	cl := rpc.NewClient(peer.Addr, c.cfg.TLSConfig)
	c.peerClients[peer.PeerID] = cl
	return cl
}

func (c *Coordinator) onlineValue(peerID types.PeerID) *watch.Value[bool] {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.peerOnline[peerID]
	if !ok {
		v = watch.NewValue(false)
		c.peerOnline[peerID] = v
	}
	return v
}

// SetPeerOnline records a reachability transition observed by the RPC
// layer or pkg/health's TCP probe, gating election eligibility and
// waking any driver parked in its online-wait path.
func (c *Coordinator) SetPeerOnline(peerID types.PeerID, online bool) {
	c.mu.Lock()
	for _, p := range c.node.Peers {
		if p.PeerID == peerID {
			p.Online = online
		}
	}
	c.mu.Unlock()

	c.onlineValue(peerID).Send(online)

	evType := events.EventPeerOffline
	if online {
		evType = events.EventPeerOnline
	}
	c.broker.Publish(&events.Event{Type: evType, PeerID: peerID})
}

// MetricsSnapshot returns a point-in-time read of the fields pkg/metrics'
// Collector samples: leadership, term, and peer counts split by online
// status.
func (c *Coordinator) MetricsSnapshot() (isLeader bool, term types.TermID, online, offline int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	isLeader = c.node.State.Kind == raftstate.KindLeader
	term = c.node.Term
	for _, p := range c.node.Peers {
		if p.Online {
			online++
		} else {
			offline++
		}
	}
	return isLeader, term, online, offline
}

// spawnFollower is installed as raftstate.Node.SpawnFollower: it starts
// one leader.Driver per followed peer, tracked so Close/step-down can
// cancel it.
func (c *Coordinator) spawnFollower(peer *types.Peer, rx *watch.Value[types.LogIndex]) {
	client := c.peerClient(peer)
	onlineRx := c.onlineValue(peer.PeerID)

	// Term and LastLog are read without the node's lock, per spec.md §9's
	// "hot-read relaxed-ordered counters" license for these fields.
	term := c.node.Term
	lastLog := c.node.LastLog
	uncommitted, _ := rx.Get()

	driverCtx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	if old, ok := c.followers[peer.PeerID]; ok {
		old()
	}
	c.followers[peer.PeerID] = cancel
	c.mu.Unlock()

	d := leader.NewDriver(c.cfg.NodeID, peer, client, c.eventCh, c.log, rx, onlineRx,
		term, lastLog, uncommitted, c.cfg.PrepareChanges, c.cfg.PrepareBlobs)
	d.RunOnWorker = c.workers.Run

	go func() {
		d.Run(driverCtx)
		c.mu.Lock()
		if c.followers[peer.PeerID] != nil {
			delete(c.followers, peer.PeerID)
		}
		c.mu.Unlock()
	}()
}

func (c *Coordinator) eventLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.eventCh:
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) handleEvent(ev *events.Event) {
	switch ev.Type {
	case events.EventStepDown:
		log.Error("cluster: stepping down, observed higher term from a follower")
		c.node.StepDown(ev.Term)
		c.mu.Lock()
		for peerID, cancel := range c.followers {
			cancel()
			delete(c.followers, peerID)
		}
		c.mu.Unlock()
	case events.EventAdvanceCommitIndex:
		// Forwarded as-is; the storage layer that owns the commit index
		// watermark decides what to do with it (§6's "cluster event
		// channel" names this as a pass-through to the coordinator, not
		// a local raftstate transition).
	}
	c.broker.Publish(ev)
}

func (c *Coordinator) electionLoop() {
	ticker := time.NewTicker(c.cfg.ElectionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.node.IsElectionDue() {
				c.node.StartElection(false, c.requestVote)
			}
		}
	}
}

func (c *Coordinator) requestVote(peer *types.Peer, term types.TermID, last types.RaftId) {
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		defer cancel()
		client := c.peerClient(peer)
		resp := client.Call(ctx, rpc.Request{Kind: rpc.ReqVote, From: c.cfg.NodeID, Term: term, Last: last})
		switch resp.Kind {
		case rpc.RespVote:
			c.node.HandleVoteResponse(peer.PeerID, resp.Term, resp.VoteGranted)
		case rpc.RespStepDown:
			c.node.StepDown(resp.Term)
		}
	}()
}
