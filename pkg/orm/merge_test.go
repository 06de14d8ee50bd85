package orm

import (
	"testing"

	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	propName    Property = "name"
	propMembers Property = "members"
	propFlags   Property = "flags"
)

type testObject struct {
	required []Property
	indexed  map[Property]IndexOptions
}

func (o *testObject) Required() []Property                 { return o.required }
func (o *testObject) Indexed() map[Property]IndexOptions    { return o.indexed }

func newTestObject() *testObject {
	return &testObject{
		required: []Property{propName},
		indexed: map[Property]IndexOptions{
			propName:    OptStore | OptIndex,
			propMembers: OptIndex,
		},
	}
}

func countMutations(doc *Document, kind MutationKind) int {
	n := 0
	for _, m := range doc.Mutations {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// S1: a list property gains and loses elements in the same merge; only
// the delta is emitted, not a full clear-then-reinsert.
func TestMergeListInsertAndRemove(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))
	prev.Set(propMembers, IntegerListValue([]int32{1, 2, 3}))

	next := New(obj)
	next.Set(propName, TextValue("team"))
	next.Set(propMembers, IntegerListValue([]int32{2, 3, 4}))

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	require.NoError(t, err)
	assert.True(t, changed)

	var added, cleared []int64
	for _, m := range doc.Mutations {
		if m.Kind != MutNumber {
			continue
		}
		if m.Options.HasClear() {
			cleared = append(cleared, m.Number)
		} else {
			added = append(added, m.Number)
		}
	}
	assert.ElementsMatch(t, []int64{1}, cleared)
	assert.ElementsMatch(t, []int64{4}, added)
	assert.Equal(t, IntegerListValue([]int32{2, 3, 4}), prev.Properties[propMembers])
}

// S2: a property changes shape from list to scalar; the old indexed
// value is fully cleared and the new one inserted, rather than diffed
// element-by-element.
func TestMergeShapeChangeListToScalar(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))
	prev.Set(propMembers, IntegerListValue([]int32{1, 2}))

	next := New(obj)
	next.Set(propName, TextValue("team"))
	next.Set(propMembers, IntegerValue(9))

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	require.NoError(t, err)
	assert.True(t, changed)

	var cleared, added []int64
	for _, m := range doc.Mutations {
		if m.Kind != MutNumber {
			continue
		}
		if m.Options.HasClear() {
			cleared = append(cleared, m.Number)
		} else {
			added = append(added, m.Number)
		}
	}
	assert.ElementsMatch(t, []int64{1, 2}, cleared)
	assert.ElementsMatch(t, []int64{9}, added)
	assert.Equal(t, IntegerValue(9), prev.Properties[propMembers])
}

// S3: leaving a required property empty on an otherwise-unset document
// fails validation before any mutation is produced.
func TestMergeValidateRequiredEmptyFails(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	next := New(obj)
	next.Set(propName, NullValue())

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	assert.False(t, changed)
	require.Error(t, err)
	var ip *errs.InvalidProperty
	require.ErrorAs(t, err, &ip)
	assert.Equal(t, "name", ip.Property)
	assert.True(t, doc.IsEmpty())
}

// invariant: an unchanged property produces no mutation at all.
func TestMergeNoOpWhenUnchanged(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))

	next := New(obj)
	next.Set(propName, TextValue("team"))

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, doc.IsEmpty())
}

// invariant: tags are reconciled by CLEAR/ADD and prev.Tags ends up equal
// to next.Tags after the merge.
func TestMergeTagsReplacedAfterMerge(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))
	prev.SetTags(propFlags, NewTagSet([]Tag{"seen", "flagged"}))

	next := New(obj)
	next.Set(propName, TextValue("team"))
	next.SetTags(propFlags, NewTagSet([]Tag{"flagged", "draft"}))

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, countMutations(doc, MutTag))

	var cleared, added []Tag
	for _, m := range doc.Mutations {
		if m.Kind != MutTag {
			continue
		}
		if m.Options.HasClear() {
			cleared = append(cleared, m.Tag)
		} else {
			added = append(added, m.Tag)
		}
	}
	assert.ElementsMatch(t, []Tag{"seen"}, cleared)
	assert.ElementsMatch(t, []Tag{"draft"}, added)
	_, hasSeen := prev.Tags[propFlags]["seen"]
	assert.False(t, hasSeen)
}

// invariant: ACL entries are CLEAR/ADD'd by identity, and the previous
// ACLs slice is left untouched by the merge -- this mirrors merge.rs,
// which never reassigns self.acls, unlike the tag pass.
func TestMergeACLsNotReassigned(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))
	prev.ACLs = []ACLEntry{{ID: 1, Rights: 0x1}, {ID: 2, Rights: 0x2}}

	next := New(obj)
	next.Set(propName, TextValue("team"))
	next.ACLs = []ACLEntry{{ID: 2, Rights: 0x2}, {ID: 3, Rights: 0x4}}

	doc := &Document{}
	changed, err := MergeValidate(prev, next, doc)
	require.NoError(t, err)
	assert.True(t, changed)

	var cleared, added []ACLEntry
	for _, m := range doc.Mutations {
		if m.Kind != MutACL {
			continue
		}
		if m.Options.HasClear() {
			cleared = append(cleared, m.ACL)
		} else {
			added = append(added, m.ACL)
		}
	}
	assert.ElementsMatch(t, []ACLEntry{{ID: 1, Rights: 0x1}}, cleared)
	assert.ElementsMatch(t, []ACLEntry{{ID: 3, Rights: 0x4}}, added)

	// prev.ACLs remains the old slice, not next's.
	assert.Equal(t, []ACLEntry{{ID: 1, Rights: 0x1}, {ID: 2, Rights: 0x2}}, prev.ACLs)
}

func TestSnapshotRoundTrip(t *testing.T) {
	obj := newTestObject()
	prev := New(obj)
	prev.Set(propName, TextValue("team"))
	prev.SetTags(propFlags, NewTagSet([]Tag{"seen"}))
	prev.ACLs = []ACLEntry{{ID: 1, Rights: 0x1}}

	doc := &Document{}
	require.NoError(t, insertSnapshot(prev, doc))
	require.Equal(t, 1, countMutations(doc, MutBinary))

	var blob []byte
	for _, m := range doc.Mutations {
		if m.Kind == MutBinary {
			blob = m.Binary
		}
	}
	loaded, err := LoadSnapshot(obj, blob)
	require.NoError(t, err)
	assert.Equal(t, prev.Properties, loaded.Properties)
	assert.Equal(t, prev.ACLs, loaded.ACLs)
	_, hasSeen := loaded.Tags[propFlags]["seen"]
	assert.True(t, hasSeen)
}
