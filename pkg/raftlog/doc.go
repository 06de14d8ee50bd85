// Package raftlog is the append-only, totally ordered log of
// RaftId -> LogEntry that the leader replication driver and the cluster
// coordinator read from (spec.md §4.5). It is built on the
// same bucket-per-entity bbolt pattern the teacher uses throughout
// pkg/storage (see boltdb.go), keyed by a big-endian encoding of the log
// index so bbolt's native cursor ordering gives prefix/range scans for
// free.
//
// Term-vector and index-bitmap queries (GetMatchTerms, GetMatchIndexes)
// exist to let a follower and leader agree on the highest common
// (term, index) point without shipping the whole log, mirroring the
// "match_terms"/"match_indexes" exchange described in spec.md §4.7's
// Synchronize state.
package raftlog
