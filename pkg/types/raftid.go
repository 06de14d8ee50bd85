package types

import (
	"fmt"
	"math"
)

// TermID identifies a raft election term.
type TermID = uint64

// LogIndex identifies a position within a single node's local log.
type LogIndex = uint64

// RaftId is the (term, index) pair that uniquely identifies a log entry
// across the cluster. The zero value is NOT the sentinel -- use RaftIDNone.
type RaftId struct {
	Term  TermID
	Index LogIndex
}

// RaftIDNone is the sentinel meaning "no entry". Both fields are u64::MAX
// so that wrapping_add(1) arithmetic in log-comparison code treats it as
// the smallest possible value, matching the source's log_is_behind_or_eq.
var RaftIDNone = RaftId{Term: math.MaxUint64, Index: math.MaxUint64}

// NewRaftId builds a RaftId from its parts.
func NewRaftId(term TermID, index LogIndex) RaftId {
	return RaftId{Term: term, Index: index}
}

// IsNone reports whether id is the sentinel "no entry" value.
func (id RaftId) IsNone() bool {
	return id == RaftIDNone
}

// Less implements the lexicographic (term, index) ordering.
func (id RaftId) Less(other RaftId) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

// Compare returns -1, 0 or 1 as id is less than, equal to, or greater than
// other, under lexicographic (term, index) ordering.
func (id RaftId) Compare(other RaftId) int {
	switch {
	case id.Term < other.Term:
		return -1
	case id.Term > other.Term:
		return 1
	case id.Index < other.Index:
		return -1
	case id.Index > other.Index:
		return 1
	default:
		return 0
	}
}

func (id RaftId) String() string {
	if id.IsNone() {
		return "RaftId(none)"
	}
	return fmt.Sprintf("RaftId(term=%d, index=%d)", id.Term, id.Index)
}
