package changes

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/errs"
)

// formatVersion is written as the first byte of a serialized MergedChanges
// so a future incompatible layout can be detected rather than silently
// misparsed.
const formatVersion byte = 1

// MergedChanges is the set of document IDs inserted, updated and deleted
// within one (account, collection) during a single commit.
type MergedChanges struct {
	Inserts *roaring.Bitmap
	Updates *roaring.Bitmap
	Deletes *roaring.Bitmap
}

// New returns an empty MergedChanges with all three bitmaps allocated.
func New() *MergedChanges {
	return &MergedChanges{
		Inserts: roaring.New(),
		Updates: roaring.New(),
		Deletes: roaring.New(),
	}
}

// IsEmpty reports whether the bundle carries no document IDs at all.
func (m *MergedChanges) IsEmpty() bool {
	return m.Inserts.IsEmpty() && m.Updates.IsEmpty() && m.Deletes.IsEmpty()
}

// Merge folds other's IDs into m, used when several commits to the same
// (account, collection) are coalesced before being appended to the log.
func (m *MergedChanges) Merge(other *MergedChanges) {
	m.Inserts.Or(other.Inserts)
	m.Updates.Or(other.Updates)
	m.Deletes.Or(other.Deletes)
}

// Rollback turns a merged change bundle into its inverse: deletes become
// inserts (the document is restored) and the delete set is cleared.
// Updates are left as-is since a rolled-back update must still be
// reapplied to restore the previous revision. Grounded on spec.md §4.4's
// rollback note.
func (m *MergedChanges) Rollback() {
	m.Inserts = m.Deletes
	m.Deletes = roaring.New()
}

// Serialize encodes m as [version byte][inserts][updates][deletes], each
// bitmap written as a 4-byte big-endian length followed by its ToBytes
// encoding.
func (m *MergedChanges) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(formatVersion)
	for _, bm := range []*roaring.Bitmap{m.Inserts, m.Updates, m.Deletes} {
		if bm == nil {
			bm = roaring.New()
		}
		encoded, err := bm.ToBytes()
		if err != nil {
			return nil, errs.NewInternal("changes.Serialize", err)
		}
		var lenPrefix [4]byte
		putUint32(lenPrefix[:], uint32(len(encoded)))
		buf.Write(lenPrefix[:])
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

// DeserializeMergedChanges decodes the form Serialize produces, returning
// a DataCorruption error for a bad version byte or a truncated/malformed
// bitmap.
func DeserializeMergedChanges(data []byte) (*MergedChanges, error) {
	if len(data) < 1 {
		return nil, errs.NewDataCorruption("changes.Deserialize", fmt.Errorf("empty payload"))
	}
	if data[0] != formatVersion {
		return nil, errs.NewDataCorruption("changes.Deserialize", fmt.Errorf("unsupported version %d", data[0]))
	}
	rest := data[1:]
	bitmaps := make([]*roaring.Bitmap, 0, 3)
	for i := 0; i < 3; i++ {
		if len(rest) < 4 {
			return nil, errs.NewDataCorruption("changes.Deserialize", fmt.Errorf("truncated length prefix"))
		}
		n := getUint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return nil, errs.NewDataCorruption("changes.Deserialize", fmt.Errorf("truncated bitmap body"))
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(rest[:n]); err != nil {
			return nil, errs.NewDataCorruption("changes.Deserialize", err)
		}
		rest = rest[n:]
		bitmaps = append(bitmaps, bm)
	}
	return &MergedChanges{Inserts: bitmaps[0], Updates: bitmaps[1], Deletes: bitmaps[2]}, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
