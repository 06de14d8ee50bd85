package types

// LogEntryKind discriminates the two LogEntry variants described in
// spec.md §3.
type LogEntryKind uint8

const (
	// LogEntrySnapshot establishes a membership/config point.
	LogEntrySnapshot LogEntryKind = iota
	// LogEntryUpdate references the document IDs mutated by one commit
	// within one (account, collection).
	LogEntryUpdate
)

// LogEntry is the payload appended to the replicated log. Only one of
// SnapshotID / Update is meaningful, selected by Kind. Changes is the
// already-serialized form produced by pkg/changes.MergedChanges.Serialize,
// kept as raw bytes here so types has no dependency on pkg/changes (the
// codec and the envelope are separate components per spec.md §2).
type LogEntry struct {
	Kind       LogEntryKind
	SnapshotID RaftId
	AccountID  AccountID
	Collection Collection
	Changes    []byte
}

// NewSnapshotEntry builds a Snapshot(raft_id) log entry.
func NewSnapshotEntry(id RaftId) LogEntry {
	return LogEntry{Kind: LogEntrySnapshot, SnapshotID: id}
}

// NewUpdateEntry builds an Update{account_id, collection, changes} log
// entry. changes is the serialized MergedChanges bundle.
func NewUpdateEntry(accountID AccountID, collection Collection, changes []byte) LogEntry {
	return LogEntry{
		Kind:       LogEntryUpdate,
		AccountID:  accountID,
		Collection: collection,
		Changes:    changes,
	}
}
