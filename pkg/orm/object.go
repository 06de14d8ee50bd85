package orm

// Property names a field on an ORM object (e.g. "name", "members").
type Property string

// Tag is one member of a property's tag set (e.g. a mailbox flag).
type Tag string

// TagSet is an unordered collection of Tags, compared by membership only.
type TagSet map[Tag]struct{}

// NewTagSet builds a TagSet from a slice, discarding duplicates.
func NewTagSet(tags []Tag) TagSet {
	set := make(TagSet, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// ACLEntry grants Rights to principal ID. Entries are identified by ID for
// CLEAR/keep decisions (invariant 4: at most one entry per ID survives a
// merge) and compared by full value for ADD detection, so a rights change
// for an existing ID is an ADD of the new entry only; the old entry is not
// cleared, since its ID is still present in next.
type ACLEntry struct {
	ID     uint32
	Rights uint32
}

// Object is implemented by each document schema (mailbox, identity, ...).
// Required lists properties that MergeValidate rejects as empty; Indexed
// maps each indexed property to the IndexOptions its values should carry.
type Object interface {
	Required() []Property
	Indexed() map[Property]IndexOptions
}
