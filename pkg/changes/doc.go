// Package changes implements MergedChanges, the per-(account, collection)
// bundle of inserted/updated/deleted document IDs that a commit appends to
// the replicated log (spec.md §3, §4.4). The three sets are compressed
// bitmaps (github.com/RoaringBitmap/roaring/v2, the same library the
// retrieval pack's erigon repo uses for its own ID sets) serialized with a
// small versioned envelope so a corrupt or truncated blob is reported as
// pkg/errs.DataCorruption rather than panicking the decoder.
package changes
