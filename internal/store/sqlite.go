package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/relay/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps everything in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent posts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS group_messages (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			room_id      TEXT NOT NULL,
			sender_id    TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content      TEXT NOT NULL DEFAULT '',
			media_url    TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_group_messages_room ON group_messages (room_id, seq);

		CREATE TABLE IF NOT EXISTS room_members (
			room_id   TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			role      TEXT NOT NULL DEFAULT 'member',
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (room_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS calls (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			caller_id  TEXT NOT NULL,
			callee_id  TEXT NOT NULL,
			status     TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls (caller_id);
		CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls (callee_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, msg domain.GroupMessage) (domain.GroupMessage, error) {
	if msg.Room == "" || msg.Sender == "" {
		return domain.GroupMessage{}, ErrInvalidRecord
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_messages (id, room_id, sender_id, content_type, content, media_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Room), string(msg.Sender), string(msg.ContentType),
		msg.Content, msg.MediaURL, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.GroupMessage{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, content_type, content, media_url, created_at FROM (
			SELECT * FROM group_messages WHERE room_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		string(room), normLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.GroupMessage
	for rows.Next() {
		var (
			m       domain.GroupMessage
			roomID  string
			sender  string
			ct      string
			created int64
		)
		if err := rows.Scan(&m.ID, &roomID, &sender, &ct, &m.Content, &m.MediaURL, &created); err != nil {
			return nil, err
		}
		m.Room = domain.RoomID(roomID)
		m.Sender = domain.UserID(sender)
		m.ContentType = domain.ContentType(ct)
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListMembers(ctx context.Context, room domain.RoomID) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, role, joined_at FROM room_members WHERE room_id = ? ORDER BY user_id`,
		string(room),
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var (
			user   string
			role   string
			joined int64
		)
		if err := rows.Scan(&user, &role, &joined); err != nil {
			return nil, err
		}
		out = append(out, domain.Member{
			Room:     room,
			User:     domain.UserID(user),
			Role:     domain.Role(role),
			JoinedAt: time.Unix(0, joined).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStore) AddMember(ctx context.Context, m domain.Member) error {
	if m.Room == "" || m.User == "" {
		return ErrInvalidRecord
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (room_id, user_id) DO UPDATE SET role = excluded.role`,
		string(m.Room), string(m.User), string(m.Role), m.JoinedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordCall(ctx context.Context, rec domain.CallRecord) error {
	if rec.Caller == "" || rec.Callee == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, caller_id, callee_id, status, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Caller), string(rec.Callee), string(rec.Status),
		rec.StartedAt.UnixNano(), rec.EndedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, caller_id, callee_id, status, started_at, ended_at FROM calls
		 WHERE caller_id = ? OR callee_id = ? ORDER BY seq DESC LIMIT ?`,
		string(user), string(user), normLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CallRecord, 0)
	for rows.Next() {
		var (
			rec            domain.CallRecord
			caller, callee string
			status         string
			started, ended int64
		)
		if err := rows.Scan(&rec.ID, &caller, &callee, &status, &started, &ended); err != nil {
			return nil, err
		}
		rec.Caller = domain.UserID(caller)
		rec.Callee = domain.UserID(callee)
		rec.Status = domain.CallStatus(status)
		rec.StartedAt = time.Unix(0, started).UTC()
		rec.EndedAt = time.Unix(0, ended).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
