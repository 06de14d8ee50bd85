package main

import (
	"sync"

	"github.com/cuemby/shardmail/pkg/cluster"
	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/service"
	"github.com/cuemby/shardmail/pkg/storage"
	"github.com/cuemby/shardmail/pkg/types"
)

// newApplyEntries builds the cluster.ApplyEntries hook that replays a
// leader's batch of committed LogEntry values against store. Snapshot
// entries are markers only (pkg/cluster's own election state already
// tracks membership); Update entries are decoded via pkg/service and
// applied to the document store.
//
// appliedCount tracks the total number of entries applied this process
// lifetime, used as the "how far this node got" index dispatch.go
// compares against the leader's CommitIndex. A node restarting mid-log
// starts this counter at zero rather than recovering it from the log
// store, so a follower that restarts relies on a subsequent full
// Synchronize round (§4.5) to re-establish agreement rather than trusting
// its own stale counter.
func newApplyEntries(store storage.Store) cluster.ApplyEntries {
	var mu sync.Mutex
	var appliedCount types.LogIndex

	return func(entries []types.LogEntry) (types.LogIndex, error) {
		mu.Lock()
		defer mu.Unlock()

		for _, entry := range entries {
			if entry.Kind != types.LogEntryUpdate {
				continue
			}
			if err := service.ApplyUpdatePayload(store, entry.AccountID, entry.Collection, entry.Changes); err != nil {
				entryLog := log.WithAccount(entry.AccountID).With().Uint8("collection", uint8(entry.Collection)).Logger()
				entryLog.Error().Err(err).Msg("shardmaild: failed to apply log entry")
				return appliedCount, err
			}
			appliedCount++
		}
		return appliedCount, nil
	}
}
