package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each chat as a hash (meta) plus a list of JSON messages.
type Redis struct {
	cli *redis.Client
	ttl time.Duration // 0 means no expiration
}

// OpenRedis connects using a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{cli: cli, ttl: ttl}, nil
}

func (s *Redis) metaKey(chatID string) string { return "huddle:chat:" + chatID }
func (s *Redis) msgsKey(chatID string) string { return "huddle:chat:" + chatID + ":messages" }

func (s *Redis) Create(ctx context.Context, chatID string) (State, error) {
	if chatID == "" {
		chatID = NewChatID()
	}
	now := time.Now().UTC().Format(timeFmt)
	ok, err := s.cli.HSetNX(ctx, s.metaKey(chatID), "created_at", now).Result()
	if err != nil {
		return State{}, fmt.Errorf("create chat: %w", err)
	}
	if ok {
		if err := s.cli.HSet(ctx, s.metaKey(chatID), "updated_at", now).Err(); err != nil {
			return State{}, fmt.Errorf("create chat: %w", err)
		}
		s.refresh(ctx, chatID)
	}
	return s.Get(ctx, chatID)
}

func (s *Redis) Get(ctx context.Context, chatID string) (State, error) {
	meta, err := s.cli.HGetAll(ctx, s.metaKey(chatID)).Result()
	if err != nil {
		return State{}, fmt.Errorf("get chat: %w", err)
	}
	if len(meta) == 0 {
		return State{}, ErrNotFound
	}
	st := State{ChatID: chatID, Title: meta["title"], Messages: []Message{}}
	st.CreatedAt, _ = time.Parse(timeFmt, meta["created_at"])
	st.UpdatedAt, _ = time.Parse(timeFmt, meta["updated_at"])

	raw, err := s.cli.LRange(ctx, s.msgsKey(chatID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("list messages: %w", err)
	}
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return State{}, fmt.Errorf("decode message: %w", err)
		}
		st.Messages = append(st.Messages, m)
	}
	return st, nil
}

func (s *Redis) Append(ctx context.Context, chatID string, msgs ...Message) error {
	n, err := s.cli.Exists(ctx, s.metaKey(chatID)).Result()
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if len(msgs) == 0 {
		return nil
	}

	encoded := make([]any, 0, len(msgs))
	for _, m := range stamp(msgs) {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		encoded = append(encoded, b)
	}
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.msgsKey(chatID), encoded...)
		if title := TitleFrom(msgs); title != "" {
			p.HSetNX(ctx, s.metaKey(chatID), "title", title)
		}
		p.HSet(ctx, s.metaKey(chatID), "updated_at", time.Now().UTC().Format(timeFmt))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	s.refresh(ctx, chatID)
	return nil
}

func (s *Redis) Delete(ctx context.Context, chatID string) error {
	n, err := s.cli.Del(ctx, s.metaKey(chatID), s.msgsKey(chatID)).Result()
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// refresh extends the TTL of both keys when one is configured.
func (s *Redis) refresh(ctx context.Context, chatID string) {
	if s.ttl <= 0 {
		return
	}
	s.cli.Expire(ctx, s.metaKey(chatID), s.ttl)
	s.cli.Expire(ctx, s.msgsKey(chatID), s.ttl)
}

func (s *Redis) Close() error {
	return s.cli.Close()
}
