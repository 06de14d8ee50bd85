package rpc

import "github.com/cuemby/shardmail/pkg/types"

// RequestKind discriminates the Request envelope's variants (spec.md §6).
type RequestKind uint8

const (
	ReqBecomeFollower RequestKind = iota
	ReqAppendEntries
	ReqVote
	ReqUpdatePeers
	ReqPing
)

// AppendEntriesKind discriminates the sub-variants carried by a
// ReqAppendEntries request.
type AppendEntriesKind uint8

const (
	AESynchronize AppendEntriesKind = iota
	AEMerge
	AEUpdate
	AEAdvanceCommitIndex
)

// AppendEntriesRequest is the payload of a ReqAppendEntries request,
// shaped by Kind.
type AppendEntriesRequest struct {
	Kind AppendEntriesKind

	MatchTerms  []byte        // AESynchronize: serialized term vector
	MatchedLog  types.RaftId  // AEMerge
	CommitIndex types.LogIndex // AEUpdate, AEAdvanceCommitIndex
	Updates     []types.LogEntry // AEUpdate
}

// Request is one outbound message on the peer connection.
type Request struct {
	Kind RequestKind

	// From identifies the sending node, needed by the receiving side to
	// answer ReqVote (candidate id) and ReqBecomeFollower (new leader id)
	// without a side channel back to the connection that carried it.
	From types.PeerID

	Term          types.TermID // ReqBecomeFollower, ReqVote, ReqAppendEntries
	LastLog       types.RaftId // ReqBecomeFollower
	Last          types.RaftId // ReqVote
	Peers         []types.Peer // ReqUpdatePeers
	AppendEntries AppendEntriesRequest
}

// ResponseKind discriminates the Response envelope's variants.
type ResponseKind uint8

const (
	RespStepDown ResponseKind = iota
	RespUpdatePeers
	RespVote
	RespAppendEntries
	RespUnregisteredPeer
	RespPong
	// RespNone is not an error: it is the first-class "no answer" value
	// synthesized when a request times out or its connection drops,
	// never to be confused with an empty success (spec.md §7).
	RespNone
)

// AppendEntriesRespKind discriminates the sub-variants of an
// RespAppendEntries response.
type AppendEntriesRespKind uint8

const (
	AERMatch AppendEntriesRespKind = iota
	AERSynchronize
	AERContinue
	AERDone
	AERUpdate
	AERFetchBlobs
)

// AppendEntriesResponse is the payload of a RespAppendEntries response,
// shaped by Kind.
type AppendEntriesResponse struct {
	Kind AppendEntriesRespKind

	MatchLog     types.RaftId   // AERMatch
	MatchIndexes []byte         // AERSynchronize: serialized local index bitmap
	UpToIndex    types.LogIndex // AERDone

	AccountID  types.AccountID  // AERUpdate
	Collection types.Collection // AERUpdate
	Changes    []byte           // AERUpdate: serialized MergedChanges
	IsRollback bool             // AERUpdate

	BlobIDs []string // AERFetchBlobs
}

// Response is one inbound message on the peer connection.
type Response struct {
	Kind ResponseKind

	Term        types.TermID // RespStepDown, RespVote
	VoteGranted bool         // RespVote
	Peers       []types.Peer // RespUpdatePeers

	AppendEntries AppendEntriesResponse
}

// None constructs the synthetic "no answer" response.
func None() Response { return Response{Kind: RespNone} }

// IsNone reports whether r is the synthetic "no answer" value.
func (r Response) IsNone() bool { return r.Kind == RespNone }
