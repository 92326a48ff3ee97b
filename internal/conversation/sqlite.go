package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const timeFmt = time.RFC3339Nano

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id      TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	id           TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	arguments    TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_chat_seq ON messages(chat_id, seq);
`

// SQLite is a Store on a local SQLite file (cgo-free driver).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dsn.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; keeps PRAGMAs on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, chatID string) (State, error) {
	if chatID == "" {
		chatID = NewChatID()
	}
	now := time.Now().UTC().Format(timeFmt)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chats (id, title, created_at, updated_at) VALUES (?, '', ?, ?)`,
		chatID, now, now); err != nil {
		return State{}, fmt.Errorf("create chat: %w", err)
	}
	return s.Get(ctx, chatID)
}

func (s *SQLite) Get(ctx context.Context, chatID string) (State, error) {
	st := State{ChatID: chatID, Messages: []Message{}}
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM chats WHERE id = ?`, chatID).
		Scan(&st.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("get chat: %w", err)
	}
	st.CreatedAt, _ = time.Parse(timeFmt, created)
	st.UpdatedAt, _ = time.Parse(timeFmt, updated)

	rows, err := s.db.QueryContext(ctx, `SELECT id, role, content, name, tool_call_id, arguments, created_at
		FROM messages WHERE chat_id = ? ORDER BY seq`, chatID)
	if err != nil {
		return State{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var role, ts string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Name, &m.ToolCallID, &m.Arguments, &ts); err != nil {
			return State{}, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt, _ = time.Parse(timeFmt, ts)
		st.Messages = append(st.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("list messages: %w", err)
	}
	return st, nil
}

func (s *SQLite) Append(ctx context.Context, chatID string, msgs ...Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var title string
	err = tx.QueryRowContext(ctx, `SELECT title FROM chats WHERE id = ?`, chatID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	for _, m := range stamp(msgs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages
			(chat_id, id, role, content, name, tool_call_id, arguments, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chatID, m.ID, string(m.Role), m.Content, m.Name, m.ToolCallID, m.Arguments,
			m.CreatedAt.UTC().Format(timeFmt)); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if title == "" {
		title = TitleFrom(msgs)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC().Format(timeFmt), chatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Delete(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
