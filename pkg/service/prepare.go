// Package service wires pkg/leader's PrepareChanges/PrepareBlobs hooks to
// local storage -- the "whatever assembles the outgoing Update payload
// from local storage" that pkg/leader.PrepareChanges's doc comment
// defers to spec.md leaving unspecified. Blob resolution is left a
// no-op: the blob store is an external collaborator SPEC_FULL.md models
// only through the interface it presents, and none was retrieved for
// this pack.
package service

import (
	"bytes"
	"encoding/gob"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/changes"
	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/storage"
	"github.com/cuemby/shardmail/pkg/types"
)

// DocumentUpdate is one document's replicated payload: its id and its
// current serialized TinyORM snapshot, or no snapshot when id is only
// present in Deletes.
type DocumentUpdate struct {
	DocumentID types.DocumentID
	Snapshot   []byte
}

// UpdatePayload is the wire format PrepareChanges produces: the
// snapshots a follower needs to apply plus the ids it should drop.
type UpdatePayload struct {
	Updates []DocumentUpdate
	Deletes []types.DocumentID
}

// Preparer implements pkg/leader.PrepareChanges and PrepareBlobs against a
// storage.Store.
type Preparer struct {
	Store storage.Store
}

// NewPreparer builds a Preparer bound to store.
func NewPreparer(store storage.Store) *Preparer {
	return &Preparer{Store: store}
}

// PrepareChanges satisfies pkg/leader.PrepareChanges: it turns a
// committed MergedChanges bundle into the serialized snapshots and
// delete ids a follower needs to replay locally.
func (p *Preparer) PrepareChanges(accountID types.AccountID, collection types.Collection, changesData []byte, isRollback bool) ([]byte, error) {
	merged, err := changes.DeserializeMergedChanges(changesData)
	if err != nil {
		return nil, errs.NewDataCorruption("prepare changes: deserialize merged changes", err)
	}
	if isRollback {
		merged.Rollback()
	}

	payload := UpdatePayload{}

	toSend := roaring.New()
	toSend.Or(merged.Inserts)
	toSend.Or(merged.Updates)
	for _, docID := range toSend.ToArray() {
		snapshot, ok, err := p.Store.GetSnapshot(accountID, collection, docID)
		if err != nil {
			return nil, errs.NewInternal("prepare changes: get snapshot", err)
		}
		if !ok {
			continue
		}
		payload.Updates = append(payload.Updates, DocumentUpdate{DocumentID: docID, Snapshot: snapshot})
	}

	payload.Deletes = append(payload.Deletes, merged.Deletes.ToArray()...)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, errs.NewInternal("prepare changes: encode payload", err)
	}
	return buf.Bytes(), nil
}

// PrepareBlobs satisfies pkg/leader.PrepareBlobs. No blob store was
// retrieved for this pack (spec.md models it as an external
// collaborator), so every requested id is reported back as remaining
// rather than silently dropped.
func (p *Preparer) PrepareBlobs(blobIDs []string) (updates []byte, remaining []string, err error) {
	return nil, blobIDs, nil
}

// ApplyUpdatePayload applies a decoded UpdatePayload to store, used by the
// follower side's ApplyEntries when a LogEntryUpdate carries a payload
// produced by PrepareChanges.
func ApplyUpdatePayload(store storage.Store, accountID types.AccountID, collection types.Collection, data []byte) error {
	var payload UpdatePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return errs.NewDataCorruption("apply update payload: decode", err)
	}

	inserted := roaring.New()
	for _, u := range payload.Updates {
		if err := store.SaveSnapshot(accountID, collection, u.DocumentID, u.Snapshot); err != nil {
			return errs.NewInternal("apply update payload: save snapshot", err)
		}
		inserted.Add(u.DocumentID)
	}

	deleted := roaring.New()
	for _, id := range payload.Deletes {
		if err := store.DeleteSnapshot(accountID, collection, id); err != nil {
			return errs.NewInternal("apply update payload: delete snapshot", err)
		}
		deleted.Add(id)
	}

	return store.ApplyDocumentChanges(accountID, collection, inserted, deleted)
}
