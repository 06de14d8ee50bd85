package orm

import (
	"bytes"
	"encoding/gob"

	"github.com/cuemby/shardmail/pkg/errs"
)

// ormSnapshotField is the reserved property key under which the merged
// TinyORM's full property/tag/ACL state is persisted as a single binary
// blob, so a later merge can load "previous" without re-deriving it from
// the index.
const ormSnapshotField Property = "\x00orm"

// MergeValidate checks next against prev.Obj.Required() before delegating
// to Merge. A required property that is empty on next, or absent from
// both prev and next, fails validation with an InvalidProperty error --
// grounded on merge.rs's pre-merge required-field pass.
func MergeValidate(prev, next *TinyORM, doc *Document) (bool, error) {
	for _, property := range prev.Obj.Required() {
		nv, hasNext := next.Properties[property]
		if hasNext {
			if nv.IsEmpty() {
				return false, errs.NewInvalidProperty(string(property), "Property cannot be empty.")
			}
			continue
		}
		if prev.Get(property).IsEmpty() {
			return false, errs.NewInvalidProperty(string(property), "Property cannot be empty.")
		}
	}
	return Merge(prev, next, doc)
}

// Merge diffs prev against next, appending the necessary CLEAR/ADD
// mutations to doc, and reports whether anything changed. prev is mutated
// in place to become the new persisted state (its Tags map is replaced
// wholesale, matching merge.rs's self.tags = changes.tags; its ACLs slice
// is deliberately NOT replaced -- see the ACL pass below). Grounded
// line-for-line on original_source/components/jmap/src/orm/merge.rs.
func Merge(prev, next *TinyORM, doc *Document) (bool, error) {
	hasChanges := false
	indexed := prev.Obj.Indexed()

	// Pass 1: properties.
	for property, nextValue := range next.Properties {
		opts, isIndexed := indexed[property]
		prevValue, hadPrev := prev.Properties[property]

		if hadPrev && prevValue.Equal(nextValue) {
			continue
		}

		if hadPrev && isIndexed && prevValue.Kind == nextValue.Kind &&
			(prevValue.Kind == KindTextList || prevValue.Kind == KindIntegerList) {
			clearListDiff(doc, property, prevValue, nextValue, opts)
			prev.Properties[property] = nextValue
			hasChanges = true
			continue
		}

		if hadPrev && isIndexed {
			// Shape changed (or a scalar changed): clear the old indexed
			// value outright before inserting the new one.
			indexValue(doc, property, prevValue.IndexAs(), opts.Clear())
		}

		if nextValue.IsEmpty() {
			delete(prev.Properties, property)
		} else {
			prev.Properties[property] = nextValue
			if isIndexed {
				indexValue(doc, property, nextValue.IndexAs(), opts)
			}
		}
		hasChanges = true
	}

	// Pass 2: tags. Every property in next.Tags is reconciled against
	// prev's set for the same property; properties that appear only in
	// prev.Tags emit no mutations.
	for property, nextSet := range next.Tags {
		prevSet := prev.Tags[property]
		for tag := range prevSet {
			if _, keep := nextSet[tag]; !keep {
				doc.Tag(property, tag, IndexOptions(0).Clear())
				hasChanges = true
			}
		}
		for tag := range nextSet {
			if _, had := prevSet[tag]; !had {
				doc.Tag(property, tag, OptIndex)
				hasChanges = true
			}
		}
	}
	if len(next.Tags) > 0 {
		prev.Tags = next.Tags
	}

	// Pass 3: ACLs. Entries whose ID no longer appears in next are
	// cleared; entries in next not matching an existing entry by full
	// value are added. Unlike the tag pass, prev.ACLs is intentionally
	// left as-is afterward -- this mirrors merge.rs, which never assigns
	// self.acls = changes.acls, and spec.md §4.3 step 3, which has no
	// "replace P.acls" instruction the way step 2 does for tags. Treat
	// this asymmetry as load-bearing, not an oversight.
	nextByID := make(map[uint32]ACLEntry, len(next.ACLs))
	for _, e := range next.ACLs {
		nextByID[e.ID] = e
	}
	for _, e := range prev.ACLs {
		if _, keep := nextByID[e.ID]; !keep {
			doc.ACL(e, IndexOptions(0).Clear())
			hasChanges = true
		}
	}
	for _, e := range next.ACLs {
		matched := false
		for _, p := range prev.ACLs {
			if p == e {
				matched = true
				break
			}
		}
		if !matched {
			doc.ACL(e, OptIndex)
			hasChanges = true
		}
	}

	if !hasChanges {
		return false, nil
	}

	if err := insertSnapshot(prev, doc); err != nil {
		return false, err
	}
	return true, nil
}

// clearListDiff emits CLEAR for elements removed from a list property and
// ADD for elements newly present, rather than a blanket clear-then-insert.
func clearListDiff(doc *Document, property Property, prevValue, nextValue Value, opts IndexOptions) {
	switch prevValue.Kind {
	case KindTextList:
		prevSet := stringSet(prevValue.TextList)
		nextSet := stringSet(nextValue.TextList)
		for _, s := range prevValue.TextList {
			if _, keep := nextSet[s]; !keep {
				indexValue(doc, property, TextValue(s), opts.Clear())
			}
		}
		for _, s := range nextValue.TextList {
			if _, had := prevSet[s]; !had {
				indexValue(doc, property, TextValue(s), opts)
			}
		}
	case KindIntegerList:
		prevSet := int32Set(prevValue.IntegerList)
		nextSet := int32Set(nextValue.IntegerList)
		for _, n := range prevValue.IntegerList {
			if _, keep := nextSet[n]; !keep {
				indexValue(doc, property, IntegerValue(n), opts.Clear())
			}
		}
		for _, n := range nextValue.IntegerList {
			if _, had := prevSet[n]; !had {
				indexValue(doc, property, IntegerValue(n), opts)
			}
		}
	}
}

// indexValue appends the Document mutation matching value's kind.
func indexValue(doc *Document, property Property, value Value, opts IndexOptions) {
	switch value.Kind {
	case KindText:
		doc.Text(property, value.Text, LanguageUnknown, opts)
	case KindInteger:
		doc.Number(property, int64(value.Integer), opts)
	case KindLongInteger:
		doc.Number(property, value.LongInteger, opts)
	case KindTextList:
		for _, s := range value.TextList {
			doc.Text(property, s, LanguageUnknown, opts)
		}
	case KindIntegerList:
		for _, n := range value.IntegerList {
			doc.Number(property, int64(n), opts)
		}
	}
}

// ormSnapshot is the gob-encodable form of the property/tag/ACL state
// persisted under ormSnapshotField.
type ormSnapshot struct {
	Properties map[Property]Value
	Tags       map[Property][]Tag
	ACLs       []ACLEntry
}

// insertSnapshot serializes prev's current state and appends a Binary
// mutation carrying it, the Go equivalent of merge.rs's insert(self) call
// that persists the merged ORM object back into the document.
func insertSnapshot(prev *TinyORM, doc *Document) error {
	snap := ormSnapshot{
		Properties: prev.Properties,
		Tags:       make(map[Property][]Tag, len(prev.Tags)),
		ACLs:       prev.ACLs,
	}
	for property, set := range prev.Tags {
		tags := make([]Tag, 0, len(set))
		for tag := range set {
			tags = append(tags, tag)
		}
		snap.Tags[property] = tags
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return errs.NewInternal("orm.insertSnapshot", err)
	}
	doc.Binary(ormSnapshotField, buf.Bytes(), OptStore)
	return nil
}

// LoadSnapshot decodes a previously persisted ORM blob back into a
// TinyORM bound to obj, for use as the "previous" side of the next merge.
func LoadSnapshot(obj Object, blob []byte) (*TinyORM, error) {
	var snap ormSnapshot
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&snap); err != nil {
		return nil, errs.NewDataCorruption("orm.LoadSnapshot", err)
	}
	t := New(obj)
	t.Properties = snap.Properties
	t.ACLs = snap.ACLs
	for property, tags := range snap.Tags {
		t.Tags[property] = NewTagSet(tags)
	}
	return t, nil
}
