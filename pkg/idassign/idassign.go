package idassign

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// IdAssigner hands out document IDs for one (account, collection),
// preferring to recycle a freed ID before growing NextID.
type IdAssigner struct {
	FreedIDs *roaring.Bitmap
	NextID   uint32
}

// New builds an IdAssigner from the bitmap of currently-used document IDs.
// A nil or empty usedIDs starts the counter at zero with nothing to
// recycle.
func New(usedIDs *roaring.Bitmap) *IdAssigner {
	if usedIDs == nil || usedIDs.IsEmpty() {
		return &IdAssigner{FreedIDs: roaring.New(), NextID: 0}
	}
	nextID := uint32(usedIDs.Maximum()) + 1
	freed := roaring.New()
	freed.AddRange(0, uint64(nextID))
	freed.AndNot(usedIDs)
	return &IdAssigner{FreedIDs: freed, NextID: nextID}
}

// AssignDocumentID returns the smallest freed ID if one exists, otherwise
// grows NextID. Callers are responsible for serializing access to one
// IdAssigner (Cache.Assign below does this per key).
func (a *IdAssigner) AssignDocumentID() uint32 {
	if !a.FreedIDs.IsEmpty() {
		id := a.FreedIDs.Minimum()
		a.FreedIDs.Remove(id)
		return id
	}
	id := a.NextID
	a.NextID++
	return id
}
