package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tripagent.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheKey_NormalizesQuestion(t *testing.T) {
	a := CacheKey("trip1", "How many countries?")
	b := CacheKey("trip1", "  how many COUNTRIES?  ")
	if a != b {
		t.Fatal("normalized questions should share a key")
	}
	if CacheKey("trip2", "How many countries?") == a {
		t.Fatal("different trips must not share a key")
	}
}

func TestSQLiteStore_CacheRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, hit, err := store.GetAnswer("trip1", "q"); err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	if err := store.PutAnswer("trip1", "q", "the answer", 42); err != nil {
		t.Fatalf("PutAnswer: %v", err)
	}

	entry, hit, err := store.GetAnswer("trip1", "  Q ")
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if entry.Answer != "the answer" || entry.TokensUsed != 42 {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestSQLiteStore_LazyExpiry(t *testing.T) {
	store := newTestStore(t)

	// Write a row that expired an hour ago.
	past := time.Now().UTC().Add(-time.Hour)
	_, err := store.db.Exec(`
		INSERT INTO response_cache (question_hash, trip_id, answer, tokens_used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		CacheKey("trip1", "old"), "trip1", "stale", 0,
		past.Add(-CacheTTL).Format(time.RFC3339), past.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("seed expired row: %v", err)
	}

	if _, hit, err := store.GetAnswer("trip1", "old"); err != nil || hit {
		t.Fatalf("expired entry should miss: hit=%v err=%v", hit, err)
	}

	// The stale row must be gone now.
	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM response_cache").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired row not deleted, count=%d", n)
	}
}

func TestSQLiteStore_UsageLog(t *testing.T) {
	store := newTestStore(t)
	err := store.LogUsage(UsageEntry{
		TripID:           "trip1",
		Question:         "how many flights",
		TokensUsed:       120,
		PromptTokens:     100,
		CompletionTokens: 20,
		CostUSD:          0.0001,
		LatencyMS:        350,
		Deterministic:    false,
	})
	if err != nil {
		t.Fatalf("LogUsage: %v", err)
	}
}

func TestSQLiteStore_ActionLifecycle(t *testing.T) {
	store := newTestStore(t)

	rec := ActionRecord{
		ID:        "act_1",
		TripID:    "trip1",
		Type:      "create_event",
		EventJSON: `{"id":"evt_1","title":"Dinner"}`,
		Status:    ActionProposed,
	}
	if err := store.SaveAction(rec); err != nil {
		t.Fatalf("SaveAction: %v", err)
	}

	if err := store.UpdateActionStatus("act_1", ActionConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Terminal states never transition again.
	if err := store.UpdateActionStatus("act_1", ActionRejected); err == nil {
		t.Fatal("confirmed action must not transition to rejected")
	}

	got, err := store.GetAction("act_1")
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != ActionConfirmed {
		t.Fatalf("status = %q", got.Status)
	}

	list, err := store.ListActions("trip1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListActions: %v (%d)", err, len(list))
	}
}

func TestSQLiteStore_InvalidStatusRejected(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpdateActionStatus("missing", "weird"); err == nil {
		t.Fatal("invalid status should error")
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	cache := NewMemoryCache()
	if err := cache.PutAnswer("trip1", "q", "a", 7); err != nil {
		t.Fatalf("PutAnswer: %v", err)
	}
	entry, hit, err := cache.GetAnswer("trip1", "Q ")
	if err != nil || !hit {
		t.Fatalf("hit=%v err=%v", hit, err)
	}
	if entry.Answer != "a" || entry.TokensUsed != 7 {
		t.Fatalf("entry = %+v", entry)
	}
}
