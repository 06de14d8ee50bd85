package types

// Collection is the fixed, small enum of replicated document collections.
// It doubles as a u8 storage key, grounded on
// original_source/components/store/src/core/collection.rs.
type Collection uint8

const (
	CollectionPrincipal        Collection = 0
	CollectionPushSubscription Collection = 1
	CollectionMail             Collection = 2
	CollectionMailbox          Collection = 3
	CollectionThread           Collection = 4
	CollectionIdentity         Collection = 5
	CollectionEmailSubmission  Collection = 6
	CollectionVacationResponse Collection = 7
	// CollectionNone is an invalid sentinel; never usable as a storage key.
	CollectionNone Collection = 8
)

func (c Collection) String() string {
	switch c {
	case CollectionPrincipal:
		return "Principal"
	case CollectionPushSubscription:
		return "PushSubscription"
	case CollectionMail:
		return "Mail"
	case CollectionMailbox:
		return "Mailbox"
	case CollectionThread:
		return "Thread"
	case CollectionIdentity:
		return "Identity"
	case CollectionEmailSubmission:
		return "EmailSubmission"
	case CollectionVacationResponse:
		return "VacationResponse"
	default:
		return "None"
	}
}

// Valid reports whether c is a usable storage key (i.e. not CollectionNone
// and within the defined range).
func (c Collection) Valid() bool {
	return c < CollectionNone
}

// AccountID identifies a JMAP account. DocumentID identifies a single
// document within one (AccountID, Collection) pair.
type AccountID = uint32
type DocumentID = uint32
