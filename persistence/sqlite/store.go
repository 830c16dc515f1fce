// Package sqlite implements session.Store on top of modernc.org/sqlite, the
// pure-Go SQLite driver, for callers who want a Session's record to survive
// past the process that produced it. Persistence is optional per spec §4.7;
// the core runs fine with session.NewInMemoryStore instead.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/brightfield-labs/deepresearch/session"
)

// schemaVersion is bumped whenever the serialized record shape changes.
// Only this package's own reader/writer need agree on the format.
const schemaVersion = 1

// Store persists Session snapshots as versioned JSON blobs in a single
// sqlite table, keyed by session ID.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and ensures
// the sessions table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		record TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// record is the versioned persistence format spec §6 describes: query,
// plan history (rounds with their subagent results), source table, draft,
// and cited output. Subagent transcripts are not stored. The event log
// itself is not persisted here;
// a dedicated event sink (outside the core) owns that.
type record struct {
	SchemaVersion int              `json:"schema_version"`
	ID            string           `json:"id"`
	Query         string           `json:"query"`
	Status        session.Status   `json:"status"`
	Rounds        []session.Round  `json:"rounds"`
	Sources       []sourceRow      `json:"sources"`
	Draft         session.Draft    `json:"draft"`
	CitedOutput   session.CitedOutput `json:"cited_output"`
}

type sourceRow struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Fetched bool   `json:"fetched"`
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	srcs := sess.Sources.Ordered()
	rows := make([]sourceRow, len(srcs))
	for i, src := range srcs {
		rows[i] = sourceRow{Index: src.Index, URL: src.URL, Title: src.Title, Snippet: src.Snippet, Fetched: src.Fetched}
	}

	draft, _ := sess.Draft()
	cited, _ := sess.CitedOutput()

	rec := record{
		SchemaVersion: schemaVersion,
		ID:            sess.ID,
		Query:         sess.Query,
		Status:        sess.Status(),
		Rounds:        sess.Rounds(),
		Sources:       rows,
		Draft:         draft,
		CitedOutput:   cited,
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sqlite: marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, schema_version, query, status, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, record=excluded.record`,
		rec.ID, rec.SchemaVersion, rec.Query, string(rec.Status), string(blob))
	if err != nil {
		return fmt.Errorf("sqlite: save session: %w", err)
	}
	return nil
}

// Load implements session.Store. Because session.Session's internal state
// is not round-trippable into a live object (Transcripts are not
// reconstructed, only Rounds/Sources/Draft/CitedOutput), Load rebuilds a
// read-only Session suitable for display rather than resumption.
func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id)
	var blob string
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal session: %w", err)
	}

	sess := session.New(rec.ID, rec.Query)
	for _, r := range rec.Rounds {
		sess.AppendRound(r)
	}
	for _, row := range rec.Sources {
		if row.Fetched {
			sess.Sources.AddFetch("", row.URL, row.Title)
		} else {
			sess.Sources.AddSearchHit("", row.URL, row.Title, row.Snippet)
		}
	}
	sess.SetDraft(rec.Draft)
	sess.SetCitedOutput(rec.CitedOutput)
	sess.SetStatus(rec.Status)
	return sess, nil
}

// List implements session.Store.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
