package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS huddle_chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS huddle_messages (
	seq          BIGSERIAL PRIMARY KEY,
	chat_id      TEXT NOT NULL REFERENCES huddle_chats(id) ON DELETE CASCADE,
	id           TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	arguments    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS huddle_messages_chat_seq ON huddle_messages(chat_id, seq);
`

// Postgres is a Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and creates the tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Create(ctx context.Context, chatID string) (State, error) {
	if chatID == "" {
		chatID = NewChatID()
	}
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO huddle_chats (id, title, created_at, updated_at) VALUES ($1, '', $2, $2)
		 ON CONFLICT (id) DO NOTHING`, chatID, now); err != nil {
		return State{}, fmt.Errorf("create chat: %w", err)
	}
	return s.Get(ctx, chatID)
}

func (s *Postgres) Get(ctx context.Context, chatID string) (State, error) {
	st := State{ChatID: chatID, Messages: []Message{}}
	err := s.pool.QueryRow(ctx,
		`SELECT title, created_at, updated_at FROM huddle_chats WHERE id = $1`, chatID).
		Scan(&st.Title, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("get chat: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT id, role, content, name, tool_call_id, arguments, created_at
		FROM huddle_messages WHERE chat_id = $1 ORDER BY seq`, chatID)
	if err != nil {
		return State{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Name, &m.ToolCallID, &m.Arguments, &m.CreatedAt); err != nil {
			return State{}, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		st.Messages = append(st.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("list messages: %w", err)
	}
	return st, nil
}

func (s *Postgres) Append(ctx context.Context, chatID string, msgs ...Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var title string
	err = tx.QueryRow(ctx, `SELECT title FROM huddle_chats WHERE id = $1 FOR UPDATE`, chatID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range stamp(msgs) {
		batch.Queue(`INSERT INTO huddle_messages
			(chat_id, id, role, content, name, tool_call_id, arguments, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chatID, m.ID, string(m.Role), m.Content, m.Name, m.ToolCallID, m.Arguments, m.CreatedAt)
	}
	if title == "" {
		title = TitleFrom(msgs)
	}
	batch.Queue(`UPDATE huddle_chats SET title = $1, updated_at = $2 WHERE id = $3`,
		title, time.Now().UTC(), chatID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Delete(ctx context.Context, chatID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM huddle_chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
