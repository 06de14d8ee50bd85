package orm

// Kind discriminates the canonical indexable shapes a property value can
// take, per spec.md §3: {Null, Text, TextList, Integer, IntegerList,
// LongInteger}.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindTextList
	KindInteger
	KindIntegerList
	KindLongInteger
)

// Value is a property's stored form. Exactly the fields matching Kind are
// meaningful; the rest are zero. Index is the same shape -- index_as()
// simply returns the receiver's canonical indexable view, so Value doubles
// as its own Index in this implementation.
type Value struct {
	Kind        Kind
	Text        string
	TextList    []string
	Integer     int32
	IntegerList []int32
	LongInteger int64
}

// NullValue is the empty/absent value.
func NullValue() Value { return Value{Kind: KindNull} }

// TextValue wraps a single indexed string.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// TextListValue wraps a list of indexed strings.
func TextListValue(items []string) Value { return Value{Kind: KindTextList, TextList: items} }

// IntegerValue wraps a 32-bit indexed integer.
func IntegerValue(n int32) Value { return Value{Kind: KindInteger, Integer: n} }

// IntegerListValue wraps a list of indexed 32-bit integers.
func IntegerListValue(items []int32) Value { return Value{Kind: KindIntegerList, IntegerList: items} }

// LongIntegerValue wraps a 64-bit indexed integer (e.g. a timestamp).
func LongIntegerValue(n int64) Value { return Value{Kind: KindLongInteger, LongInteger: n} }

// IndexAs returns the canonical index form of the value. In this
// implementation Value already stores its canonical form, so this is the
// identity -- the method exists to mirror the source's index_as() call
// sites and to keep merge.go readable against original_source/.../merge.rs.
func (v Value) IndexAs() Value { return v }

// IsEmpty reports whether v should be treated as absent for required-
// property validation and for the non-indexed insert/remove decision.
// Numbers are never "empty" (there is no such thing as an empty integer);
// only Null, an empty string, and empty lists are.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == ""
	case KindTextList:
		return len(v.TextList) == 0
	case KindIntegerList:
		return len(v.IntegerList) == 0
	default:
		return false
	}
}

// Equal reports exact equality (same kind, same content in the same
// order). This is used only for the merge engine's fast "no-op" path; list
// values that differ only in order or duplicates still compare unequal
// here and fall through to the index diff, which is a correctness no-op
// since the diff re-derives an identical index set either way.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == other.Text
	case KindInteger:
		return v.Integer == other.Integer
	case KindLongInteger:
		return v.LongInteger == other.LongInteger
	case KindTextList:
		return stringSliceEqual(v.TextList, other.TextList)
	case KindIntegerList:
		return int32SliceEqual(v.IntegerList, other.IntegerList)
	default:
		return false
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func int32SliceEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func int32Set(items []int32) map[int32]struct{} {
	set := make(map[int32]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
