package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	selection      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'draft',
	subjects       TEXT NOT NULL,
	processed      INTEGER NOT NULL DEFAULT 0,
	total          INTEGER NOT NULL DEFAULT 0,
	current_index  INTEGER NOT NULL DEFAULT 0,
	results        TEXT,
	errors         TEXT,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	total_time_ms  INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *model.BulkSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	enc, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, selection, status, subjects, processed, total, current_index,
		 results, errors, total_cost_usd, total_time_ms, created_at, updated_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Name, enc.selection, string(session.Status), enc.subjects,
		session.Processed, session.Total, session.CurrentIndex,
		enc.results, enc.errors, session.TotalCostUSD, session.TotalTimeMS,
		session.CreatedAt, session.UpdatedAt, session.StartedAt, session.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", session.ID)
}

// Checkpoint persists the mutable fields of one session row.
func (s *SQLiteStore) Checkpoint(ctx context.Context, session *model.BulkSession) error {
	session.UpdatedAt = time.Now().UTC()

	enc, err := encodeSession(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, processed = ?, current_index = ?, results = ?, errors = ?,
		 total_cost_usd = ?, total_time_ms = ?, updated_at = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(session.Status), session.Processed, session.CurrentIndex, enc.results, enc.errors,
		session.TotalCostUSD, session.TotalTimeMS, session.UpdatedAt, session.StartedAt, session.CompletedAt,
		session.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: checkpoint session %s", session.ID)
	}
	return checkRowsAffected(res, "session", session.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.BulkSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.BulkSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.BulkSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	return checkRowsAffected(res, "session", id)
}

// helpers

const sessionColumns = `id, name, selection, status, subjects, processed, total, current_index,
	results, errors, total_cost_usd, total_time_ms, created_at, updated_at, started_at, completed_at`

type encodedSession struct {
	selection string
	subjects  string
	results   string
	errors    string
}

func encodeSession(session *model.BulkSession) (encodedSession, error) {
	var enc encodedSession

	b, err := json.Marshal(session.Selection)
	if err != nil {
		return enc, eris.Wrap(err, "store: marshal selection")
	}
	enc.selection = string(b)

	if b, err = json.Marshal(session.Subjects); err != nil {
		return enc, eris.Wrap(err, "store: marshal subjects")
	}
	enc.subjects = string(b)

	if b, err = json.Marshal(session.Results); err != nil {
		return enc, eris.Wrap(err, "store: marshal results")
	}
	enc.results = string(b)

	if b, err = json.Marshal(session.Errors); err != nil {
		return enc, eris.Wrap(err, "store: marshal errors")
	}
	enc.errors = string(b)

	return enc, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.BulkSession, error) {
	var sess model.BulkSession
	var selectionJSON, subjectsJSON string
	var resultsJSON, errorsJSON sql.NullString

	err := row.Scan(
		&sess.ID, &sess.Name, &selectionJSON, &sess.Status, &subjectsJSON,
		&sess.Processed, &sess.Total, &sess.CurrentIndex,
		&resultsJSON, &errorsJSON, &sess.TotalCostUSD, &sess.TotalTimeMS,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.StartedAt, &sess.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.New("session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan session")
	}

	if err := json.Unmarshal([]byte(selectionJSON), &sess.Selection); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal selection")
	}
	if err := json.Unmarshal([]byte(subjectsJSON), &sess.Subjects); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal subjects")
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &sess.Results); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal results")
		}
	}
	if sess.Results == nil {
		sess.Results = make(map[string]model.CompanyResult)
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &sess.Errors); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal errors")
		}
	}
	return &sess, nil
}
