// Package models defines the row shapes persisted by the indexer. These
// mirror the relational tables described in the storage schema; the
// repository package is the only thing that knows the exact SQL.
package models

import "time"

// Status is the terminal-state lattice shared by every verifiable row:
// PENDING -> FINALIZED or PENDING -> ORPHANED. FINALIZED and ORPHANED are
// terminal; a row must never transition out of them.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFinalized Status = "FINALIZED"
	StatusOrphaned  Status = "ORPHANED"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusOrphaned
}

// Agent is the asset-identity row. Key: Asset.
type Agent struct {
	Asset      string
	GlobalID   int64
	Owner      string
	Collection string
	Wallet     string // optional, may be empty
	URI        string

	FeedbackDigest  []byte // nil means all-zero / absent
	FeedbackCount   int64
	ResponseDigest  []byte
	ResponseCount   int64
	RevokeDigest    []byte
	RevokeCount     int64

	FeedbackCountAgg int64 // not set by repository reads; the recomputed COUNT(*) over non-revoked feedback is stored in feedback_count and read into FeedbackCount
	RawAvgScore      float64

	AtomEnabled bool
	Status      Status

	BlockSlot     uint64
	TxIndex       *int32 // nil => NULL, sorts after any integer
	TxSignature   string
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Feedback is a rating emitted by a client against an agent.
// Composite key: (Asset, ClientAddress, FeedbackIndex).
type Feedback struct {
	Asset           string
	ClientAddress   string
	FeedbackIndex   int64

	ValueRaw        string // arbitrary-precision integer, stored as string
	ValueDecimals   int32  // decimal exponent
	Score           int32
	Tag1            string
	Tag2            string
	Endpoint        string
	FeedbackURI     string
	FeedbackHash    []byte // content hash, nil if all-zero
	RunningDigest   []byte
	IsRevoked       bool
	Status          Status

	BlockSlot   uint64
	TxIndex     *int32
	TxSignature string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Response is a reply to a feedback.
// Composite key: (Asset, ClientAddress, FeedbackIndex, Responder, TxSignature).
type Response struct {
	Asset         string
	ClientAddress string
	FeedbackIndex int64
	Responder     string
	TxSignature   string

	ResponseURI   string
	RunningDigest []byte
	Status        Status

	BlockSlot uint64
	TxIndex   *int32
	CreatedAt time.Time
}

// Revocation is a terminal mark on a feedback.
type Revocation struct {
	Asset         string
	ClientAddress string
	FeedbackIndex int64

	RunningDigest []byte // on the revoke chain, not the feedback chain
	Status        Status

	BlockSlot   uint64
	TxIndex     *int32
	TxSignature string
	CreatedAt   time.Time
}

// MetadataEntry is a (Asset, Key) -> opaque bytes entry. Values carry a
// one-byte compression-prefix framing understood by internal/compress.
type MetadataEntry struct {
	Asset     string
	Key       string
	KeyHash   string // first 16 bytes of sha256(Key), hex-encoded; used as the on-chain PDA seed
	Value     []byte // framed: [prefix:1][payload]
	Immutable bool

	BlockSlot   uint64
	TxIndex     *int32
	TxSignature string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// URIMetadataPrefix is the reserved metadata-key namespace owned
// exclusively by the URI-metadata worker. On-chain event handlers reject
// keys in this namespace.
const URIMetadataPrefix = "_uri:"

// URIStatusKey is the status row the URI worker writes after every fetch
// attempt (success or failure). Resolves the spec's open question in
// favor of the underscore-prefixed form.
const URIStatusKey = URIMetadataPrefix + "_status"

// Validation is a PDA-addressed row existence-verified the same way as
// agents and registries (spec.md §4.5.2 names "validations" as a
// verifiable table without defining its columns; this is the minimal
// shape needed for existence verification).
type Validation struct {
	Asset     string
	Validator string
	Nonce     uint32
	Status    Status

	BlockSlot   uint64
	TxIndex     *int32
	TxSignature string
	CreatedAt   time.Time
}

// Collection is the registry pointer row. Key: Collection.
type Collection struct {
	Collection     string
	FirstSeenSlot  uint64
	FirstSeenTx    string
	LastSeenSlot   uint64
	LastSeenTx     string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Cursor is the single-row indexer checkpoint.
type Cursor struct {
	ID             string // always "main"
	LastSignature  string
	LastSlot       uint64
	Source         string
	PendingContinuation string // opaque pagination continuation token (memory guard resume point, §4.2.3)
	PendingStopSignature string
	UpdatedAt      time.Time
}

// DeadLetterEntry holds an event payload that exhausted flush retries.
type DeadLetterEntry struct {
	ID          int64
	EventType   string
	Payload     []byte // JSON-encoded event
	Reason      string
	InsertedAt  time.Time
}

// MaxTxIndex is the SQL sentinel (2^31 - 1) that a NULL tx_index sorts
// as. Never coalesce a real index of 0 into this sentinel.
const MaxTxIndex int32 = 2147483647

// TxIndexOrSentinel returns the in-memory comparator value matching the
// SQL "COALESCE(tx_index, 2147483647)" ordering rule.
func TxIndexOrSentinel(idx *int32) int32 {
	if idx == nil {
		return MaxTxIndex
	}
	return *idx
}
