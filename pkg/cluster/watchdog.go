package cluster

import (
	"context"
	"time"

	"github.com/cuemby/shardmail/pkg/health"
	"github.com/cuemby/shardmail/pkg/types"
)

// WatchdogInterval is how often each peer's TCPChecker reruns.
const WatchdogInterval = 10 * time.Second

// RunPeerWatchdog starts one goroutine per configured peer, each driving a
// health.TCPChecker and calling SetPeerOnline with the result of every
// check. It returns once the goroutines are started; they stop when ctx
// is cancelled.
func (c *Coordinator) RunPeerWatchdog(ctx context.Context) {
	for _, p := range c.cfg.Peers {
		go c.watchPeer(ctx, p)
	}
}

func (c *Coordinator) watchPeer(ctx context.Context, peer *types.Peer) {
	checker := health.NewTCPChecker(peer.Addr)
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()

	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, checker.Timeout)
		defer cancel()
		result := checker.Check(checkCtx)
		c.SetPeerOnline(peer.PeerID, result.Healthy)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
