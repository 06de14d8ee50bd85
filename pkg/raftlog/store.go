package raftlog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketLog = []byte("raft_log")

// Store is the append-only log, backed by one bbolt bucket keyed by
// big-endian log index.
type Store struct {
	db *bolt.DB
}

// Open wraps db, creating the log bucket if it does not already exist.
// db is expected to be shared with the rest of pkg/storage's buckets --
// raftlog does not own the file, only its bucket.
func Open(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLog)
		return err
	})
	if err != nil {
		return nil, errs.NewInternal("raftlog.Open", err)
	}
	return &Store{db: db}, nil
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

func keyIndex(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

type storedEntry struct {
	Term  uint64
	Entry types.LogEntry
}

// Append writes entry at the given RaftId's index, recording its term
// alongside it. The leader is the only writer; it is the caller's
// responsibility to hold the collection lock (§5) while assembling the
// entry this call persists.
func (s *Store) Append(id types.RaftId, entry types.LogEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(storedEntry{Term: id.Term, Entry: entry}); err != nil {
		return errs.NewInternal("raftlog.Append", err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		return b.Put(indexKey(id.Index), buf.Bytes())
	})
	if err != nil {
		return errs.NewInternal("raftlog.Append", err)
	}
	return nil
}

func decodeEntry(data []byte) (storedEntry, error) {
	var se storedEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&se); err != nil {
		return storedEntry{}, errs.NewDataCorruption("raftlog.decodeEntry", err)
	}
	return se, nil
}

// LastLog returns the RaftId of the most recently appended entry, or
// types.RaftIDNone if the log is empty.
func (s *Store) LastLog() (types.RaftId, error) {
	var id types.RaftId = types.RaftIDNone
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		se, err := decodeEntry(v)
		if err != nil {
			return err
		}
		id = types.NewRaftId(se.Term, keyIndex(k))
		return nil
	})
	return id, err
}

// GetPrevRaftId returns the entry immediately preceding index id.Index, if
// any.
func (s *Store) GetPrevRaftId(id types.RaftId) (types.RaftId, bool, error) {
	var found bool
	var result types.RaftId = types.RaftIDNone
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		c.Seek(indexKey(id.Index))
		k, _ := c.Prev()
		if k == nil {
			return nil
		}
		_, v := c.Seek(k)
		se, err := decodeEntry(v)
		if err != nil {
			return err
		}
		result = types.NewRaftId(se.Term, keyIndex(k))
		found = true
		return nil
	})
	return result, found, err
}

// GetNextRaftId returns the entry immediately following index id.Index,
// if any.
func (s *Store) GetNextRaftId(id types.RaftId) (types.RaftId, bool, error) {
	var found bool
	var result types.RaftId = types.RaftIDNone
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		k, v := c.Seek(indexKey(id.Index + 1))
		if k == nil {
			return nil
		}
		se, err := decodeEntry(v)
		if err != nil {
			return err
		}
		result = types.NewRaftId(se.Term, keyIndex(k))
		found = true
		return nil
	})
	return result, found, err
}

// NextEntry returns the full log entry immediately following afterIndex,
// if any, alongside its RaftId. Used by the follower side of Merge to
// walk forward from a matched point and find the next update to request.
func (s *Store) NextEntry(afterIndex uint64) (types.RaftId, types.LogEntry, bool, error) {
	var found bool
	var id types.RaftId = types.RaftIDNone
	var entry types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		k, v := c.Seek(indexKey(afterIndex + 1))
		if k == nil {
			return nil
		}
		se, err := decodeEntry(v)
		if err != nil {
			return err
		}
		id = types.NewRaftId(se.Term, keyIndex(k))
		entry = se.Entry
		found = true
		return nil
	})
	return id, entry, found, err
}

// GetMatchTerms returns the compact term vector: the RaftId of every
// index whose term differs from the entry immediately preceding it, with
// index 0's entry always included as the anchor. Never empty over a
// non-empty log.
func (s *Store) GetMatchTerms() ([]types.RaftId, error) {
	var vector []types.RaftId
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		var prevTerm uint64
		first := true
		for k, v := c.First(); k != nil; k, v = c.Next() {
			se, err := decodeEntry(v)
			if err != nil {
				return err
			}
			if first || se.Term != prevTerm {
				vector = append(vector, types.NewRaftId(se.Term, keyIndex(k)))
			}
			prevTerm = se.Term
			first = false
		}
		return nil
	})
	return vector, err
}

// GetMatchIndexes returns the term recorded at minIndex and the bitmap of
// local indexes sharing that term at or after minIndex. If minIndex is
// not present in the log, ok is false.
func (s *Store) GetMatchIndexes(minIndex uint64) (term uint64, indexes *roaring64.Bitmap, ok bool, err error) {
	indexes = roaring64.New()
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		k, v := c.Seek(indexKey(minIndex))
		if k == nil || keyIndex(k) != minIndex {
			return nil
		}
		se, decErr := decodeEntry(v)
		if decErr != nil {
			return decErr
		}
		term = se.Term
		ok = true
		for ; k != nil; k, v = c.Next() {
			entryTerm, decErr := decodeEntry(v)
			if decErr != nil {
				return decErr
			}
			if entryTerm.Term != term {
				break
			}
			indexes.Add(keyIndex(k))
		}
		return nil
	})
	return term, indexes, ok, err
}

// PendingChange is one per-collection MergedChanges bundle awaiting
// delivery to a follower, serialized form ready to ship over pkg/rpc.
type PendingChange struct {
	AccountID  types.AccountID
	Collection types.Collection
	Changes    []byte
	IsRollback bool
}

// Batch is what GetEntries hands back: the packed log entries plus
// whatever pending changes did not fit within MaxBytes.
type Batch struct {
	Updates          []types.LogEntry
	RemainingChanges []PendingChange
	LastIndex        uint64
}

// GetEntries packs log entries in (afterIndex, upToIndex] plus as many
// pendingChanges as fit into maxBytes, returning what was packed, the
// index of the last log entry actually consumed, and any pendingChanges
// left for the next call.
func (s *Store) GetEntries(afterIndex, upToIndex uint64, pendingChanges []PendingChange, maxBytes int) (*Batch, error) {
	batch := &Batch{LastIndex: afterIndex}
	size := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.Seek(indexKey(afterIndex + 1)); k != nil; k, v = c.Next() {
			idx := keyIndex(k)
			if idx > upToIndex {
				break
			}
			se, err := decodeEntry(v)
			if err != nil {
				return err
			}
			if size+len(v) > maxBytes && len(batch.Updates) > 0 {
				break
			}
			batch.Updates = append(batch.Updates, se.Entry)
			batch.LastIndex = idx
			size += len(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	remaining := pendingChanges
	for len(remaining) > 0 {
		pc := remaining[0]
		if size+len(pc.Changes) > maxBytes && len(batch.Updates) > 0 {
			break
		}
		batch.Updates = append(batch.Updates, types.NewUpdateEntry(pc.AccountID, pc.Collection, pc.Changes))
		size += len(pc.Changes)
		remaining = remaining[1:]
	}
	batch.RemainingChanges = remaining
	return batch, nil
}
