package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements CacheStore, UsageStore and ActionStore using SQLite
// with WAL mode. Concurrent access is the driver's problem, not ours; each
// request touches the store independently.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates and initializes the database file.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS response_cache (
		question_hash TEXT PRIMARY KEY,
		trip_id       TEXT NOT NULL,
		answer        TEXT NOT NULL,
		tokens_used   INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		expires_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_log (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id           TEXT NOT NULL,
		question          TEXT NOT NULL DEFAULT '',
		tokens_used       INTEGER NOT NULL DEFAULT 0,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd          REAL NOT NULL DEFAULT 0,
		latency_ms        INTEGER NOT NULL DEFAULT 0,
		deterministic     INTEGER NOT NULL DEFAULT 0,
		cached            INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_actions (
		id         TEXT PRIMARY KEY,
		trip_id    TEXT NOT NULL,
		type       TEXT NOT NULL,
		event_json TEXT NOT NULL DEFAULT '{}',
		reason     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'proposed',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_trip ON response_cache(trip_id);
	CREATE INDEX IF NOT EXISTS idx_usage_trip ON usage_log(trip_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_actions_trip ON agent_actions(trip_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Response cache ---

func (s *SQLiteStore) GetAnswer(tripID, question string) (*CacheEntry, bool, error) {
	key := CacheKey(tripID, question)
	row := s.db.QueryRow(`
		SELECT trip_id, answer, tokens_used, created_at, expires_at
		FROM response_cache WHERE question_hash=?`, key)

	var entry CacheEntry
	var createdAt, expiresAt string
	err := row.Scan(&entry.TripID, &entry.Answer, &entry.TokensUsed, &createdAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	entry.QuestionHash = key
	entry.CreatedAt = parseStoredTime(createdAt)
	entry.ExpiresAt = parseStoredTime(expiresAt)

	if time.Now().UTC().After(entry.ExpiresAt) {
		// Lazy expiry: drop the stale row and report a miss.
		if _, err := s.db.Exec("DELETE FROM response_cache WHERE question_hash=?", key); err != nil {
			return nil, false, fmt.Errorf("delete expired entry: %w", err)
		}
		return nil, false, nil
	}
	return &entry, true, nil
}

func (s *SQLiteStore) PutAnswer(tripID, question, answer string, tokensUsed int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO response_cache (question_hash, trip_id, answer, tokens_used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		CacheKey(tripID, question), tripID, answer, tokensUsed,
		now.Format(time.RFC3339), now.Add(CacheTTL).Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// --- Usage telemetry ---

func (s *SQLiteStore) LogUsage(entry UsageEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO usage_log (trip_id, question, tokens_used, prompt_tokens, completion_tokens,
			cost_usd, latency_ms, deterministic, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TripID, entry.Question, entry.TokensUsed, entry.PromptTokens, entry.CompletionTokens,
		entry.CostUSD, entry.LatencyMS, boolToInt(entry.Deterministic), boolToInt(entry.Cached),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}
	return nil
}

// --- Agent actions ---

func (s *SQLiteStore) SaveAction(rec ActionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = ActionProposed
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_actions (id, trip_id, type, event_json, reason, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TripID, rec.Type, rec.EventJSON, rec.Reason, rec.Status,
		rec.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAction(id string) (ActionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, trip_id, type, event_json, reason, status, created_at, updated_at
		FROM agent_actions WHERE id=?`, id)
	return scanAction(row)
}

func (s *SQLiteStore) ListActions(tripID string) ([]ActionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, trip_id, type, event_json, reason, status, created_at, updated_at
		FROM agent_actions WHERE trip_id=? ORDER BY created_at`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateActionStatus moves an action out of the proposed state. The WHERE
// clause enforces the one-way lifecycle: confirmed and rejected rows are
// terminal.
func (s *SQLiteStore) UpdateActionStatus(id, status string) error {
	if status != ActionConfirmed && status != ActionRejected {
		return fmt.Errorf("invalid action status %q", status)
	}
	res, err := s.db.Exec(`
		UPDATE agent_actions SET status=?, updated_at=? WHERE id=? AND status=?`,
		status, time.Now().UTC().Format(time.RFC3339), id, ActionProposed)
	if err != nil {
		return fmt.Errorf("update action status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update action status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("action %s is not in proposed state", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (ActionRecord, error) {
	var rec ActionRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.TripID, &rec.Type, &rec.EventJSON, &rec.Reason,
		&rec.Status, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ActionRecord{}, fmt.Errorf("action not found")
		}
		return ActionRecord{}, fmt.Errorf("scan action: %w", err)
	}
	rec.CreatedAt = parseStoredTime(createdAt)
	rec.UpdatedAt = parseStoredTime(updatedAt)
	return rec, nil
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
