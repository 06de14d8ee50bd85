// Package orm implements the per-document ORM merge/indexing engine: a
// typed property map with a tag set and an ACL side (TinyORM), a Document
// index-mutation builder, and the three-way merge algorithm that diffs a
// previous TinyORM snapshot against an incoming one, emitting the index
// deltas the store needs to apply.
//
// The merge algorithm (merge.go) is grounded line-for-line on
// original_source/components/jmap/src/orm/merge.rs.
package orm
