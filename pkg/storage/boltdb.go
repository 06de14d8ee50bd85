package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketBitmaps   = []byte("bitmaps")
	bucketCA        = []byte("ca")
)

// BoltStore implements Store using BoltDB, bucket-per-entity, mirroring
// the teacher's original BoltStore shape.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store rooted at dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shardmail.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketBitmaps, bucketCA} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// NewBoltStoreFromDB wraps an already-open *bolt.DB, used when a node
// shares one database file between pkg/raftlog.Store and pkg/storage.
func NewBoltStoreFromDB(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketBitmaps, bucketCA} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func snapshotKey(account types.AccountID, collection types.Collection, doc types.DocumentID) []byte {
	key := make([]byte, 9)
	binary.BigEndian.PutUint32(key[0:4], account)
	key[4] = byte(collection)
	binary.BigEndian.PutUint32(key[5:9], doc)
	return key
}

func bitmapKey(account types.AccountID, collection types.Collection, index string) []byte {
	key := make([]byte, 5+len(index))
	binary.BigEndian.PutUint32(key[0:4], account)
	key[4] = byte(collection)
	copy(key[5:], index)
	return key
}

// SaveSnapshot upserts the serialized TinyORM state for one document.
func (s *BoltStore) SaveSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(snapshotKey(account, collection, doc), data)
	})
}

// GetSnapshot reads the serialized TinyORM state for one document.
func (s *BoltStore) GetSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get(snapshotKey(account, collection, doc))
		if v == nil {
			return nil
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, data != nil, err
}

// DeleteSnapshot removes a document's snapshot, called after its
// collection's merge sees a Delete change.
func (s *BoltStore) DeleteSnapshot(account types.AccountID, collection types.Collection, doc types.DocumentID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete(snapshotKey(account, collection, doc))
	})
}

// SaveBitmap persists one secondary index's document-id set.
func (s *BoltStore) SaveBitmap(account types.AccountID, collection types.Collection, key string, bitmap *roaring.Bitmap) error {
	encoded, err := bitmap.ToBytes()
	if err != nil {
		return fmt.Errorf("failed to encode bitmap: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBitmaps).Put(bitmapKey(account, collection, key), encoded)
	})
}

// GetBitmap reads one secondary index's document-id set, returning an
// empty bitmap (not an error) when the key has never been written.
func (s *BoltStore) GetBitmap(account types.AccountID, collection types.Collection, key string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBitmaps).Get(bitmapKey(account, collection, key))
		if v == nil {
			return nil
		}
		return bm.UnmarshalBinary(v)
	})
	return bm, err
}

// UsedDocumentIDs implements idassign.UsedIDsLoader's backing store call.
func (s *BoltStore) UsedDocumentIDs(account types.AccountID, collection types.Collection) (*roaring.Bitmap, error) {
	return s.GetBitmap(account, collection, docIDsKey)
}

// ApplyDocumentChanges updates the used-ID bitmap for one (account,
// collection), adding inserted and clearing deleted IDs.
func (s *BoltStore) ApplyDocumentChanges(account types.AccountID, collection types.Collection, inserted, deleted *roaring.Bitmap) error {
	used, err := s.UsedDocumentIDs(account, collection)
	if err != nil {
		return err
	}
	used.Or(inserted)
	used.AndNot(deleted)
	return s.SaveBitmap(account, collection, docIDsKey, used)
}

// SaveCA persists the CA's encrypted root-key blob (security.CAStore).
func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

// GetCA reads the CA's encrypted root-key blob (security.CAStore).
func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("ca"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}
