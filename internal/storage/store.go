package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CacheTTL is how long a cached answer stays valid. Expired entries are
// deleted lazily on the next read.
const CacheTTL = 24 * time.Hour

// CacheEntry is one cached answer, immutable once written.
type CacheEntry struct {
	TripID       string
	QuestionHash string
	Answer       string
	TokensUsed   int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// UsageEntry is one telemetry row per resolved request.
type UsageEntry struct {
	TripID           string
	Question         string
	TokensUsed       int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	LatencyMS        int64
	Deterministic    bool
	Cached           bool
	CreatedAt        time.Time
}

// ActionRecord is a persisted agent mutation proposal. Status moves
// proposed -> confirmed | rejected and never back.
type ActionRecord struct {
	ID        string
	TripID    string
	Type      string
	EventJSON string
	Reason    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	ActionProposed  = "proposed"
	ActionConfirmed = "confirmed"
	ActionRejected  = "rejected"
)

// CacheStore is the response cache. Writes are best-effort from the caller's
// point of view; the resolver never fails a request on a cache error.
type CacheStore interface {
	GetAnswer(tripID, question string) (*CacheEntry, bool, error)
	PutAnswer(tripID, question, answer string, tokensUsed int) error
}

// UsageStore records per-request telemetry.
type UsageStore interface {
	LogUsage(entry UsageEntry) error
}

// ActionStore persists agent proposals and their confirm/reject lifecycle.
type ActionStore interface {
	SaveAction(rec ActionRecord) error
	GetAction(id string) (ActionRecord, error)
	ListActions(tripID string) ([]ActionRecord, error)
	UpdateActionStatus(id, status string) error
}

// CacheKey derives the content address for a (trip, question) pair. The
// question is normalized so trivially different phrasings of the same text
// share an entry.
func CacheKey(tripID, question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(tripID + ":" + normalized))
	return hex.EncodeToString(sum[:])
}
