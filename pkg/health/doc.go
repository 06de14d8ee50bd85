/*
Package health provides health check mechanisms for monitoring peer
reachability in a shardmail cluster.

This package implements a Checker interface and a TCP-based checker
against it. pkg/cluster's peer watchdog runs one TCPChecker per
configured peer on a fixed interval and feeds its Result into
Coordinator.SetPeerOnline, which drives election eligibility and the
shardmail_raft_peers_total metric.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                   Health Check System                       │
	└─────┬──────────────────────────────────────────────────────┘
	      │
	      ▼
	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	         ▼
	    ┌────────┐
	    │  TCP   │
	    │Checker │
	    └────────┘
	         │
	         ▼
	   Connect :addr

## Peer Watchdog Flow

 1. Coordinator.RunPeerWatchdog spawns one goroutine per configured peer
 2. Every WatchdogInterval: dial the peer's address with a 5s timeout
 3. Healthy dial → SetPeerOnline(peer, true)
 4. Failed dial → SetPeerOnline(peer, false)
 5. raftstate's election logic and the shardmail_raft_peers_total gauge
    both read the resulting online/offline state

# Usage

	checker := health.NewTCPChecker("10.0.0.2:7000")
	result := checker.Check(ctx)
	if !result.Healthy {
		log.Warn("peer unreachable: " + result.Message)
	}

# See Also

  - pkg/cluster/watchdog.go: drives one TCPChecker per peer
*/
package health
