package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"CopilotChat/internal/session"
)

// ErrNotFound is returned when no transcript exists for an ID
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time DATETIME,
	endpoint TEXT,
	model TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	id TEXT NOT NULL,
	role TEXT,
	content TEXT,
	timestamp DATETIME,
	suggestions TEXT,
	PRIMARY KEY (session_id, seq),
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);`

// Summary describes one archived transcript
type Summary struct {
	ID           string
	StartTime    time.Time
	Model        string
	MessageCount int
}

// Store persists chat transcripts in SQLite
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes sess, replacing any earlier copy of the same transcript
func (s *Store) Save(sess *session.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO sessions (id, start_time, endpoint, model) VALUES (?, ?, ?, ?)",
		sess.ID, sess.StartTime, sess.Endpoint, sess.Model,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, msg := range sess.Messages {
		var suggestions []byte
		if len(msg.Suggestions) > 0 {
			if suggestions, err = json.Marshal(msg.Suggestions); err != nil {
				return fmt.Errorf("failed to encode suggestions: %w", err)
			}
		}
		_, err = tx.Exec(
			"INSERT INTO messages (session_id, seq, id, role, content, timestamp, suggestions) VALUES (?, ?, ?, ?, ?, ?, ?)",
			sess.ID, i, msg.ID, string(msg.Role), msg.Content, msg.Timestamp, string(suggestions),
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads the transcript with the given ID
func (s *Store) Load(id string) (*session.Session, error) {
	sess := &session.Session{ID: id}

	err := s.db.QueryRow("SELECT start_time, endpoint, model FROM sessions WHERE id = ?", id).
		Scan(&sess.StartTime, &sess.Endpoint, &sess.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT id, role, content, timestamp, suggestions FROM messages WHERE session_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	sess.Messages = []session.Message{}
	for rows.Next() {
		var msg session.Message
		var role, suggestions string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp, &suggestions); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = session.Role(role)
		if suggestions != "" {
			if err := json.Unmarshal([]byte(suggestions), &msg.Suggestions); err != nil {
				return nil, fmt.Errorf("failed to decode suggestions: %w", err)
			}
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return sess, nil
}

// List returns archived transcripts, newest first
func (s *Store) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.start_time, s.model, COUNT(m.seq)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.StartTime, &sum.Model, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
