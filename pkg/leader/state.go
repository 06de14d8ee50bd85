package leader

import (
	"github.com/cuemby/shardmail/pkg/changes"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/types"
)

// Kind discriminates the driver's mutually exclusive states.
type Kind uint8

const (
	KindBecomeLeader Kind = iota
	KindSynchronize
	KindMerge
	KindWait
	KindAppendLogs
	KindAppendChanges
	KindAppendBlobs
)

// State is the tagged union of the driver's seven states. Only the
// fields relevant to Kind are meaningful.
type State struct {
	Kind Kind

	MatchedLog types.RaftId // Merge

	PendingChanges []raftlog.PendingChange // AppendLogs

	AccountID  types.AccountID      // AppendChanges
	Collection types.Collection     // AppendChanges
	Changes    *changes.MergedChanges // AppendChanges
	IsRollback bool                 // AppendChanges

	PendingBlobIDs []string // AppendBlobs
}

// BatchMaxBytes bounds how much one AppendLogs round packs into a single
// Update request, matching the source's BATCH_MAX_SIZE constant.
const BatchMaxBytes = 256 * 1024
