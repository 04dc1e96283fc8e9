package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voyago/concierge/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			cursor INTEGER NOT NULL DEFAULT 0,
			answers TEXT NOT NULL DEFAULT '{}',
			issued_code TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			code_image_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expects_response INTEGER NOT NULL DEFAULT 0,
			response_kind TEXT NOT NULL DEFAULT 'none',
			options TEXT,
			selections TEXT,
			pending INTEGER NOT NULL DEFAULT 0,
			code TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	answers, err := marshalAnswers(session.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, email, phase, cursor, answers, issued_code, category, summary, code_image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.Name, session.Email, session.Phase, session.Cursor, answers,
		session.IssuedCode, session.Category, session.Summary, session.CodeImageURL,
		session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var answers string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, name, email, phase, cursor, answers, issued_code, category, summary, code_image_url, created_at, updated_at
		 FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.Name, &session.Email, &session.Phase,
		&session.Cursor, &answers, &session.IssuedCode, &session.Category, &session.Summary,
		&session.CodeImageURL, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &session.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	return &session, nil
}

// SaveSession writes a full session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	answers, err := marshalAnswers(session.Answers)
	if err != nil {
		return err
	}
	session.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, email = ?, phase = ?, cursor = ?, answers = ?,
		 issued_code = ?, category = ?, summary = ?, code_image_url = ?, updated_at = ?
		 WHERE session_id = ?`,
		session.Name, session.Email, session.Phase, session.Cursor, answers,
		session.IssuedCode, session.Category, session.Summary, session.CodeImageURL,
		session.UpdatedAt, session.SessionID)
	return err
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	options, err := marshalJSON(message.Options)
	if err != nil {
		return err
	}
	selections, err := marshalJSON(message.Selections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, seq, role, content, created_at, expects_response, response_kind, options, selections, pending, code, category)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Seq, message.Role, message.Content,
		message.CreatedAt, boolToInt(message.ExpectsResponse), message.ResponseKind,
		options, selections, boolToInt(message.Pending), message.Code, message.Category)
	return err
}

// UpdateMessage rewrites the mutable fields of a message.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, message *domain.Message) error {
	options, err := marshalJSON(message.Options)
	if err != nil {
		return err
	}
	selections, err := marshalJSON(message.Selections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, expects_response = ?, response_kind = ?, options = ?, selections = ?, pending = ?, code = ?, category = ?
		 WHERE message_id = ?`,
		message.Content, boolToInt(message.ExpectsResponse), message.ResponseKind,
		options, selections, boolToInt(message.Pending), message.Code, message.Category,
		message.MessageID)
	return err
}

// GetMessages retrieves messages for a session in seq order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int, afterSeq int64) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, seq, role, content, created_at, expects_response, response_kind, options, selections, pending, code, category
		 FROM messages WHERE session_id = ?`
	args := []interface{}{sessionID}

	if afterSeq > 0 {
		query += ` AND seq > ?`
		args = append(args, afterSeq)
	}

	query += ` ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// LastMessage returns the most recent message for a session, or nil.
func (s *SQLiteStore) LastMessage(ctx context.Context, sessionID string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, session_id, seq, role, content, created_at, expects_response, response_kind, options, selections, pending, code, category
		 FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		sessionID)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// NextSeq returns the next message sequence number for a session.
func (s *SQLiteStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM messages WHERE session_id = ?`, sessionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// DeleteStaleSessions removes unfinished sessions untouched since cutoff,
// along with their messages.
func (s *SQLiteStore) DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN
		 (SELECT session_id FROM sessions WHERE phase != ? AND updated_at < ?)`,
		domain.PhaseComplete, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE phase != ? AND updated_at < ?`,
		domain.PhaseComplete, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var expects, pending int
	var options, selections sql.NullString
	err := row.Scan(&msg.MessageID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content,
		&msg.CreatedAt, &expects, &msg.ResponseKind, &options, &selections, &pending,
		&msg.Code, &msg.Category)
	if err != nil {
		return nil, err
	}
	msg.ExpectsResponse = expects != 0
	msg.Pending = pending != 0
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &msg.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
	}
	if selections.Valid && selections.String != "" {
		if err := json.Unmarshal([]byte(selections.String), &msg.Selections); err != nil {
			return nil, fmt.Errorf("failed to decode selections: %w", err)
		}
	}
	return &msg, nil
}

func marshalAnswers(answers map[string][]string) (string, error) {
	if answers == nil {
		return "{}", nil
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(data), nil
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
