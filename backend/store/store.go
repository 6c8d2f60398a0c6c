package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/shared"
)

var ErrNotFound = errors.New("store: not found")

// Store persists per-session chunk outputs and global state on SQLite so a
// crashed or aborted run leaves a resumable snapshot. Chunk writes are
// keyed by (session, index) and upsert: writing the same chunk twice is
// last-write-wins, which makes crash-and-resume races harmless.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	strategy         TEXT NOT NULL,
	status           TEXT NOT NULL,
	source_text      TEXT NOT NULL,
	instructions     TEXT NOT NULL DEFAULT '',
	total_chunks     INTEGER NOT NULL DEFAULT 0,
	chunks_processed INTEGER NOT NULL DEFAULT 0,
	output           TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	session_id TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, idx)
);

CREATE TABLE IF NOT EXISTS global_state (
	session_id TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, shared.Wrap(shared.ErrorSourceStorage, err, "open database")
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent jobs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, shared.Wrap(shared.ErrorSourceStorage, err, "apply schema")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type SessionRecord struct {
	ID              uuid.UUID
	Strategy        string
	Status          string
	SourceText      string
	Instructions    string
	TotalChunks     int
	ChunksProcessed int
	Output          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, strategy, status, source_text, instructions, total_chunks, chunks_processed, output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Strategy, rec.Status, rec.SourceText, rec.Instructions,
		rec.TotalChunks, rec.ChunksProcessed, rec.Output, now, now,
	)
	if err != nil {
		return shared.Wrap(shared.ErrorSourceStorage, err, "create session %s", rec.ID)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, id uuid.UUID, status string, totalChunks, chunksProcessed int, output string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, total_chunks = ?, chunks_processed = ?, output = ?, updated_at = ?
		WHERE id = ?`,
		status, totalChunks, chunksProcessed, output, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return shared.Wrap(shared.ErrorSourceStorage, err, "update session %s", id)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, status, source_text, instructions, total_chunks, chunks_processed, output, created_at, updated_at
		FROM sessions WHERE id = ?`, id.String(),
	)

	var rec SessionRecord
	var rawID string
	err := row.Scan(&rawID, &rec.Strategy, &rec.Status, &rec.SourceText, &rec.Instructions,
		&rec.TotalChunks, &rec.ChunksProcessed, &rec.Output, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, shared.Wrap(shared.ErrorSourceStorage, err, "get session %s", id)
	}
	rec.ID, err = uuid.Parse(rawID)
	if err != nil {
		return SessionRecord{}, shared.Wrap(shared.ErrorSourceStorage, err, "parse session id")
	}
	return rec, nil
}

// SaveChunkOutput upserts one chunk's output for a session.
func (s *Store) SaveChunkOutput(ctx context.Context, sessionID uuid.UUID, index int, output string, wordCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (session_id, idx, output, word_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, idx) DO UPDATE SET
			output = excluded.output,
			word_count = excluded.word_count,
			updated_at = excluded.updated_at`,
		sessionID.String(), index, output, wordCount, time.Now().UTC(),
	)
	if err != nil {
		return shared.Wrap(shared.ErrorSourceStorage, err, "save chunk %d for session %s", index, sessionID)
	}
	return nil
}

// ChunkOutputs returns all persisted chunk outputs for a session keyed by
// chunk index.
func (s *Store) ChunkOutputs(ctx context.Context, sessionID uuid.UUID) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, output FROM chunks WHERE session_id = ? ORDER BY idx`,
		sessionID.String(),
	)
	if err != nil {
		return nil, shared.Wrap(shared.ErrorSourceStorage, err, "list chunks for session %s", sessionID)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var idx int
		var output string
		if err := rows.Scan(&idx, &output); err != nil {
			return nil, shared.Wrap(shared.ErrorSourceStorage, err, "scan chunk row")
		}
		out[idx] = output
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Wrap(shared.ErrorSourceStorage, err, "iterate chunk rows")
	}
	return out, nil
}

func (s *Store) SaveGlobalState(ctx context.Context, sessionID uuid.UUID, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_state (session_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sessionID.String(), string(data), time.Now().UTC(),
	)
	if err != nil {
		return shared.Wrap(shared.ErrorSourceStorage, err, "save global state for session %s", sessionID)
	}
	return nil
}

func (s *Store) GlobalState(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM global_state WHERE session_id = ?`, sessionID.String(),
	)

	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, shared.Wrap(shared.ErrorSourceStorage, err, "get global state for session %s", sessionID)
	}
	return []byte(data), nil
}
