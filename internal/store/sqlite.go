package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS subjects (
		subject_id TEXT PRIMARY KEY,
		created_at_utc TEXT NOT NULL,
		meta_json TEXT
	);

	CREATE TABLE IF NOT EXISTS apps (
		app_id TEXT PRIMARY KEY,
		app_type TEXT NOT NULL,
		app_version INTEGER DEFAULT 1,
		schema_json TEXT
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
		app_id TEXT NOT NULL REFERENCES apps(app_id),
		app_type TEXT NOT NULL,
		ts_start_utc TEXT NOT NULL,
		ts_end_utc TEXT,
		tz TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_at);

	CREATE TABLE IF NOT EXISTS events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		event_index INTEGER NOT NULL,
		ts_utc TEXT NOT NULL,
		tz TEXT,
		server_ts TEXT NOT NULL,
		event_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		payload_json TEXT NOT NULL CHECK (json_valid(payload_json)),
		UNIQUE(session_id, event_index)
	);

	CREATE TABLE IF NOT EXISTS assets (
		asset_id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		modality TEXT NOT NULL,
		subtype TEXT,
		ts_utc TEXT NOT NULL,
		tz TEXT,
		path TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}' CHECK (json_valid(meta_json)),
		server_ts TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assets_session ON assets(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// UpsertSubject records a subject the first time it is seen.
func (s *SQLiteStore) UpsertSubject(ctx context.Context, subject *domain.Subject) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	createdAt := subject.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var meta sql.NullString
	if subject.MetaJSON != "" {
		meta = sql.NullString{String: subject.MetaJSON, Valid: true}
	}

	query := `INSERT INTO subjects (subject_id, created_at_utc, meta_json) VALUES (?, ?, ?)
		ON CONFLICT(subject_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, subject.SubjectID, domain.FormatTimestamp(createdAt), meta); err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

// UpsertApp records an app, refreshing its type on conflict.
func (s *SQLiteStore) UpsertApp(ctx context.Context, app *domain.App) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	version := app.AppVersion
	if version <= 0 {
		version = 1
	}
	query := `
	INSERT INTO apps (app_id, app_type, app_version) VALUES (?, ?, ?)
	ON CONFLICT(app_id) DO UPDATE SET app_type = excluded.app_type`
	if _, err := s.db.ExecContext(ctx, query, app.AppID, app.AppType, version); err != nil {
		return fmt.Errorf("upsert app: %w", err)
	}
	return nil
}

// CreateSession inserts a new active session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	status := session.Status
	if status == "" {
		status = domain.SessionActive
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
	INSERT INTO sessions (session_id, subject_id, app_id, app_type, ts_start_utc, tz, status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		session.SessionID, session.SubjectID, session.AppID, session.AppType,
		session.TSStartUTC, session.TZ, string(status), updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session with its event count.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT s.session_id, s.subject_id, s.app_id, s.app_type, s.ts_start_utc,
		       s.ts_end_utc, s.tz, s.status, s.updated_at,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.session_id)
		FROM sessions s WHERE s.session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.Session
	var tsEnd, tz sql.NullString
	var status string
	var updatedAt int64

	err := row.Scan(
		&session.SessionID, &session.SubjectID, &session.AppID, &session.AppType,
		&session.TSStartUTC, &tsEnd, &tz, &status, &updatedAt, &session.EventsCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.TSEndUTC = tsEnd.String
	session.TZ = tz.String
	session.Status = domain.SessionStatus(status)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// FinishSession stamps the end timestamp and marks the session finished.
// Finishing twice overwrites the end timestamp.
func (s *SQLiteStore) FinishSession(ctx context.Context, sessionID string, tsEndUTC string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `UPDATE sessions SET ts_end_utc = ?, status = ?, updated_at = ? WHERE session_id = ?`
	result, err := s.db.ExecContext(ctx, query, tsEndUTC, string(domain.SessionFinished), time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertEvent stores one event and bumps the session's activity time.
func (s *SQLiteStore) InsertEvent(ctx context.Context, event *domain.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	serverTS := event.ServerTS
	if serverTS.IsZero() {
		serverTS = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// New activity revives a session the sweeper gave up on.
	touch := `
	UPDATE sessions
	SET updated_at = ?,
	    status = CASE WHEN status = ? THEN ? ELSE status END
	WHERE session_id = ?`
	result, err := tx.ExecContext(ctx, touch,
		serverTS.Unix(), string(domain.SessionAbandoned), string(domain.SessionActive), event.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	insert := `
	INSERT INTO events (session_id, event_index, ts_utc, tz, server_ts, event_type, item_id, payload_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, json(?))`
	res, err := tx.ExecContext(ctx, insert,
		event.SessionID, event.EventIndex, event.TSUTC, event.TZ,
		domain.FormatTimestamp(serverTS), event.EventType, event.ItemID, string(event.Payload()),
	)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.EventID = id
	}
	event.ServerTS = serverTS
	return nil
}

// ListEvents returns a session's events ordered by event_index.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	query := `
		SELECT event_id, session_id, event_index, ts_utc, tz, server_ts, event_type, item_id, payload_json
		FROM events WHERE session_id = ? ORDER BY event_index`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close event rows", "error", closeErr)
		}
	}()

	var events []*domain.Event
	for rows.Next() {
		var event domain.Event
		var tz sql.NullString
		var serverTS, payload string

		if err := rows.Scan(
			&event.EventID, &event.SessionID, &event.EventIndex, &event.TSUTC, &tz,
			&serverTS, &event.EventType, &event.ItemID, &payload,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		event.TZ = tz.String
		event.PayloadJSON = json.RawMessage(payload)
		if ts, err := time.Parse(domain.TimestampLayout, serverTS); err == nil {
			event.ServerTS = ts
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// MarkAbandoned flips active sessions idle for longer than ttl to abandoned
// and returns their ids.
func (s *SQLiteStore) MarkAbandoned(ctx context.Context, ttl time.Duration) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	query := `UPDATE sessions SET status = ? WHERE status = ? AND updated_at < ? RETURNING session_id`
	rows, err := s.db.QueryContext(ctx, query, string(domain.SessionAbandoned), string(domain.SessionActive), threshold)
	if err != nil {
		return nil, fmt.Errorf("mark abandoned sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close abandoned session rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan abandoned session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate abandoned sessions: %w", err)
	}
	return ids, nil
}

// InsertAsset records an uploaded file.
func (s *SQLiteStore) InsertAsset(ctx context.Context, asset *domain.Asset) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	serverTS := asset.ServerTS
	if serverTS.IsZero() {
		serverTS = time.Now()
	}
	meta := asset.MetaJSON
	if len(meta) == 0 {
		meta = []byte("{}")
	}

	query := `
	INSERT INTO assets (subject_id, session_id, modality, subtype, ts_utc, tz, path, meta_json, server_ts)
	VALUES (?, ?, ?, ?, ?, ?, ?, json(?), ?)`
	res, err := s.db.ExecContext(ctx, query,
		asset.SubjectID, asset.SessionID, asset.Modality, asset.Subtype, asset.TSUTC, asset.TZ,
		asset.Path, string(meta), domain.FormatTimestamp(serverTS),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		asset.AssetID = id
	}
	asset.ServerTS = serverTS
	return nil
}

// ListAssets returns a session's assets in upload order.
func (s *SQLiteStore) ListAssets(ctx context.Context, sessionID string) ([]*domain.Asset, error) {
	query := `
		SELECT asset_id, subject_id, session_id, modality, subtype, ts_utc, tz, path, meta_json, server_ts
		FROM assets WHERE session_id = ? ORDER BY asset_id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close asset rows", "error", closeErr)
		}
	}()

	var assets []*domain.Asset
	for rows.Next() {
		var asset domain.Asset
		var subtype, tz sql.NullString
		var meta, serverTS string
		if err := rows.Scan(
			&asset.AssetID, &asset.SubjectID, &asset.SessionID, &asset.Modality, &subtype,
			&asset.TSUTC, &tz, &asset.Path, &meta, &serverTS,
		); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		asset.Subtype = subtype.String
		asset.TZ = tz.String
		asset.MetaJSON = json.RawMessage(meta)
		if ts, err := time.Parse(domain.TimestampLayout, serverTS); err == nil {
			asset.ServerTS = ts
		}
		assets = append(assets, &asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}
