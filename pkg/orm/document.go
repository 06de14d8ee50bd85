package orm

// IndexOptions is a bitset controlling how a mutation's value is written
// into the store's indexes, mirroring the Rust IndexOptions bitflags.
type IndexOptions uint8

const (
	// OptStore persists the value so it can be read back verbatim.
	OptStore IndexOptions = 1 << iota
	// OptIndex adds the value to the property's sorted/secondary index.
	OptIndex
	// OptTokenize splits text into terms for the full-text index.
	OptTokenize
	// OptClear removes rather than inserts; set by the merge engine, never
	// by callers building a fresh Document.
	OptClear
)

// Clear returns opts with OptClear set, leaving Store/Index/Tokenize
// untouched so the store knows which sub-indexes to remove from.
func (opts IndexOptions) Clear() IndexOptions { return opts | OptClear }

// HasClear reports whether opts carries the clear bit.
func (opts IndexOptions) HasClear() bool { return opts&OptClear != 0 }

// Language identifies the stemmer/tokenizer to use for a text mutation.
// LanguageUnknown disables language-specific tokenization.
type Language uint8

const LanguageUnknown Language = 0

// MutationKind discriminates the index-mutation variants a Document can
// carry.
type MutationKind uint8

const (
	MutText MutationKind = iota
	MutNumber
	MutTag
	MutACL
	MutBlob
	MutBinary
)

// Mutation is one index delta: add or remove (per Options.HasClear) a
// value from a property's index.
type Mutation struct {
	Kind    MutationKind
	Field   Property
	Text    string
	Language Language
	Number  int64
	Tag     Tag
	ACL     ACLEntry
	BlobID  string
	Binary  []byte
	Options IndexOptions
}

// Document accumulates the index mutations produced for one write. The
// merge engine is the only producer in this package; pkg/storage has no
// method that reads the finished slice or applies its mutations.
type Document struct {
	Mutations []Mutation
}

func (d *Document) Text(field Property, text string, lang Language, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutText, Field: field, Text: text, Language: lang, Options: opts})
}

func (d *Document) Number(field Property, number int64, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutNumber, Field: field, Number: number, Options: opts})
}

func (d *Document) Tag(field Property, tag Tag, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutTag, Field: field, Tag: tag, Options: opts})
}

func (d *Document) ACL(entry ACLEntry, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutACL, ACL: entry, Options: opts})
}

func (d *Document) Blob(field Property, blobID string, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutBlob, Field: field, BlobID: blobID, Options: opts})
}

func (d *Document) Binary(field Property, data []byte, opts IndexOptions) {
	d.Mutations = append(d.Mutations, Mutation{Kind: MutBinary, Field: field, Binary: data, Options: opts})
}

func (d *Document) IsEmpty() bool { return len(d.Mutations) == 0 }
