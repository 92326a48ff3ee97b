package players

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FetchFunc downloads the raw player dump of one sport.
type FetchFunc func(ctx context.Context) ([]byte, error)

// SyncOptions controls Ensure.
type SyncOptions struct {
	// Path caches the trimmed table. Empty keeps the synced table in memory.
	Path string
	// MaxAge is how old Path may be before it is refreshed. Zero never refreshes
	// an existing file.
	MaxAge time.Duration
	// Fetch is nil when syncing is disabled.
	Fetch FetchFunc
}

// Ensure returns the best table available. A fresh cache file is used as is;
// otherwise the table is fetched and written back to Path. When fetching
// fails the stale file, then the embedded sample, is used.
func Ensure(ctx context.Context, opts SyncOptions) (*Table, error) {
	cached, age, err := loadCached(opts.Path)
	if err != nil {
		return nil, err
	}
	if cached != nil && (opts.Fetch == nil || opts.MaxAge <= 0 || age < opts.MaxAge) {
		return cached, nil
	}
	if opts.Fetch == nil {
		return Default(), nil
	}

	raw, err := opts.Fetch(ctx)
	var t *Table
	if err == nil {
		t, err = Read(bytes.NewReader(raw))
	}
	if err != nil {
		if cached != nil {
			slog.Warn("player sync failed, using cached table",
				slog.String("file", opts.Path), slog.Duration("age", age), slog.Any("error", err))
			return cached, nil
		}
		slog.Warn("player sync failed, using embedded sample", slog.Any("error", err))
		return Default(), nil
	}

	if opts.Path != "" {
		if err := t.WriteFile(opts.Path); err != nil {
			slog.Warn("cache player table", slog.String("file", opts.Path), slog.Any("error", err))
		}
	}
	slog.Info("player table synced", slog.Int("players", t.Len()), slog.String("file", opts.Path))
	return t, nil
}

func loadCached(path string) (*Table, time.Duration, error) {
	if path == "" {
		return nil, 0, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat players file: %w", err)
	}
	t, err := Load(path)
	if err != nil {
		return nil, 0, err
	}
	return t, time.Since(info.ModTime()), nil
}

// WriteFile stores the table in its trimmed form, keeping only the fields
// Player carries. The write goes through a temp file so readers never see a
// partial table.
func (t *Table) WriteFile(path string) error {
	b, err := json.Marshal(t.byID)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create players dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".players-*.json")
	if err != nil {
		return fmt.Errorf("create players file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write players file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write players file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write players file: %w", err)
	}
	return nil
}

// DefaultCachePath is where a synced table lives when no file is configured.
// It returns "" when the user cache directory is unknown.
func DefaultCachePath(sport string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "huddle", "players_"+sport+".json")
}
