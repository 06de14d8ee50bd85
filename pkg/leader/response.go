package leader

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cuemby/shardmail/pkg/changes"
	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/events"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
)

// handleCommonResponse deals with the three response shapes every state
// can receive regardless of what was asked: StepDown, the synthetic None
// (timeout/disconnect), and UnregisteredPeer. handled is false when resp
// needs to be interpreted by the caller's own state-specific logic.
func (d *Driver) handleCommonResponse(ctx context.Context, resp rpc.Response) (handled bool, cont bool) {
	switch resp.Kind {
	case rpc.RespStepDown:
		d.emit(&events.Event{Type: events.EventStepDown, PeerID: d.Peer.PeerID, Term: resp.Term})
		return true, false
	case rpc.RespNone:
		return true, d.waitForPeerOnline(ctx)
	case rpc.RespUnregisteredPeer:
		d.state = State{Kind: KindBecomeLeader}
		return true, true
	default:
		return false, true
	}
}

// waitForPeerOnline blocks until the peer reconnects (OnlineRx reports
// true) or the leader context is cancelled. On reconnect it resets the
// driver back to BecomeLeader so the handshake restarts cleanly.
func (d *Driver) waitForPeerOnline(ctx context.Context) bool {
	if d.OnlineRx == nil {
		d.state = State{Kind: KindBecomeLeader}
		return true
	}
	for {
		online, ver, ok := d.OnlineRx.Changed(d.onlineVersion, ctx.Done())
		if !ok {
			return false
		}
		d.onlineVersion = ver
		if online {
			d.state = State{Kind: KindBecomeLeader}
			return true
		}
	}
}

// encodeRaftIds gob-encodes a match-term vector for the wire.
func encodeRaftIds(ids []types.RaftId) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ids); err != nil {
		return nil, errs.NewInternal("leader.encodeRaftIds", err)
	}
	return buf.Bytes(), nil
}

// decodeIndexSet decodes a follower-reported local match-index bitmap.
func decodeIndexSet(data []byte) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if len(data) == 0 {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, errs.NewDataCorruption("leader.decodeIndexSet", err)
	}
	return bm, nil
}

// indexSetMinimum returns the smallest member of bm, or false if empty.
func indexSetMinimum(bm *roaring64.Bitmap) (uint64, bool) {
	if bm.IsEmpty() {
		return 0, false
	}
	return bm.Minimum(), true
}

// intersectMax intersects a and b without mutating either, returning the
// largest index common to both, or false if they share nothing.
func intersectMax(a, b *roaring64.Bitmap) (uint64, bool) {
	inter := a.Clone()
	inter.And(b)
	if inter.IsEmpty() {
		return 0, false
	}
	return inter.Maximum(), true
}

// decodeMergedChanges decodes a wire-form MergedChanges bundle, surfacing
// any failure as the same DataCorruption taxonomy pkg/changes uses.
func decodeMergedChanges(data []byte) (*changes.MergedChanges, error) {
	mc, err := changes.DeserializeMergedChanges(data)
	if err != nil {
		return nil, err
	}
	return mc, nil
}
