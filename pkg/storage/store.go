package storage

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/security"
	"github.com/cuemby/shardmail/pkg/types"
)

// Store defines the interface for a node's local document store: TinyORM
// snapshots (for the merge engine's previous-state diff), the roaring-
// bitmap secondary indexes merge.go's Document mutations feed, and the CA
// bucket pkg/security.CertAuthority persists its root key into. BoltStore
// implements it; NewBoltStoreFromDB lets it share its *bolt.DB handle with
// pkg/raftlog.Store.
type Store interface {
	// Snapshots hold the last-applied orm.TinyORM state for one document,
	// serialized by the caller (pkg/orm has no opinion on wire format);
	// the merge engine diffs against this on the next write to the same
	// document. ok is false if no snapshot has ever been saved.
	SaveSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID, data []byte) error
	GetSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID) (data []byte, ok bool, err error)
	DeleteSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID) error

	// Bitmaps are the secondary indexes a Document's Mutations resolve
	// into: one roaring.Bitmap of document IDs per (account, collection,
	// index key), where the index key encodes the indexed property and
	// value (e.g. "tag:\x03seen" or "text:subject:invoice"). docIDsKey is
	// the reserved key for the full set of document IDs ever assigned in
	// a collection, read by pkg/idassign.Cache's loader.
	SaveBitmap(account types.AccountID, collection types.Collection, key string, bitmap *roaring.Bitmap) error
	GetBitmap(account types.AccountID, collection types.Collection, key string) (*roaring.Bitmap, error)

	// UsedDocumentIDs is GetBitmap(account, collection, docIDsKey),
	// defaulting to an empty bitmap rather than erroring when nothing has
	// been assigned yet -- the exact shape idassign.UsedIDsLoader expects.
	UsedDocumentIDs(account types.AccountID, collection types.Collection) (*roaring.Bitmap, error)

	// ApplyDocumentChanges folds one commit's inserted and deleted
	// document IDs into the (account, collection) used-ID bitmap, so a
	// later idassign.New call for that collection sees IDs the applied
	// log entry already consumed or freed.
	ApplyDocumentChanges(account types.AccountID, collection types.Collection, inserted, deleted *roaring.Bitmap) error

	security.CAStore

	Close() error
}

// docIDsKey is the reserved bitmap key for a collection's full set of
// assigned document IDs.
const docIDsKey = "\x00docids"
