// Package storage persists a node's local document state: the per-document
// TinyORM snapshots pkg/orm's merge engine diffs against, the roaring-
// bitmap secondary indexes a Document's Mutations resolve into, and the
// cluster CA's root-key blob. Grounded on the teacher's pkg/storage
// (bucket-per-entity BoltDB CRUD), with buckets replaced end to end: the
// teacher's nodes/services/containers/volumes/networks/ingresses buckets
// have no equivalent in this domain, so only the CA bucket survives from
// the original layout alongside two new ones.
package storage
