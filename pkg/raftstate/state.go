package raftstate

import (
	"time"

	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
)

// Kind discriminates the five mutually exclusive election states a node
// can be in.
type Kind uint8

const (
	KindWait Kind = iota
	KindCandidate
	KindVotedFor
	KindFollower
	KindLeader
)

// State is the tagged union of the five election states. Only the fields
// relevant to Kind are meaningful, mirroring the Rust enum's per-variant
// payloads.
type State struct {
	Kind Kind

	// Wait, Candidate, VotedFor
	ElectionDue time.Time

	// VotedFor, Follower
	PeerID types.PeerID

	// Leader
	LogIndexTx *watch.Value[types.LogIndex]
}

const (
	electionTimeoutMillis   = 1000
	electionRandFromMillis  = 150
	electionRandToMillis    = 300
)

// ElectionTimeout returns the instant an election should next be
// considered due. now=true collapses the fixed component to zero so the
// caller can force an immediate (randomized) retry.
func ElectionTimeout(now bool, rnd func(lo, hi int) int) time.Time {
	fixed := electionTimeoutMillis
	if now {
		fixed = 0
	}
	jitter := rnd(electionRandFromMillis, electionRandToMillis)
	return time.Now().Add(time.Duration(fixed+jitter) * time.Millisecond)
}

// NewWaitState builds the default startup state: Wait with a fresh
// election timer.
func NewWaitState(rnd func(lo, hi int) int) State {
	return State{Kind: KindWait, ElectionDue: ElectionTimeout(false, rnd)}
}
