package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/config"
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/fantasy"
	"github.com/anatolykoptev/huddle/internal/players"
	"github.com/anatolykoptev/huddle/internal/provider"
	"github.com/anatolykoptev/huddle/internal/session"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

const playersSyncTimeout = 2 * time.Minute

// app is the wired engine shared by every command.
type app struct {
	cfg      config.Config
	sleeper  *sleeper.Client
	registry *toolreg.Registry
	store    conversation.Store
	sessions *session.Manager
	engine   *chat.Engine
}

// loadConfig reads the environment and installs the logger on logs.
func loadConfig(logs io.Writer) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}
	setupLogger(cfg.Log, logs)
	return cfg, nil
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	client, err := sleeper.New(sleeper.OptionsFromConfig(cfg.Sleeper))
	if err != nil {
		return nil, fmt.Errorf("sleeper client: %w", err)
	}

	table, err := loadPlayers(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	registry := toolreg.NewRegistry()
	if err := fantasy.Register(registry, fantasy.DepsFromConfig(cfg.Sleeper, client, table)); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	prompt := chat.DefaultPrompt
	if cfg.PromptFile != "" {
		if prompt, err = chat.LoadPrompt(cfg.PromptFile); err != nil {
			return nil, err
		}
	}

	store, err := conversation.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(cfg.Session.IdleTimeout)
	engine := chat.New(chat.Options{
		Provider:  provider.New(cfg.LLM),
		Registry:  registry,
		Store:     store,
		Sessions:  sessions,
		Prompt:    prompt,
		StepDelay: cfg.Purchase.StepDelay,
	})

	slog.Info("huddle ready",
		slog.String("version", cfg.Version),
		slog.String("model", cfg.LLM.Model),
		slog.Int("tools", len(registry.List())))

	return &app{
		cfg:      cfg,
		sleeper:  client,
		registry: registry,
		store:    store,
		sessions: sessions,
		engine:   engine,
	}, nil
}

// loadPlayers resolves the player table, syncing it from Sleeper when the
// cached copy is missing or older than the configured max age.
func loadPlayers(ctx context.Context, cfg config.Config, client *sleeper.Client) (*players.Table, error) {
	sport := cfg.Sleeper.DefaultSport
	opts := players.SyncOptions{Path: cfg.Players.File, MaxAge: cfg.Players.MaxAge}
	if opts.Path == "" {
		opts.Path = players.DefaultCachePath(sport)
	}
	if cfg.Players.Sync {
		opts.Fetch = func(ctx context.Context) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, playersSyncTimeout)
			defer cancel()
			return client.Players(ctx, sport)
		}
	}
	table, err := players.Ensure(ctx, opts)
	if err != nil {
		return nil, err
	}
	slog.Info("player table loaded", slog.Int("players", table.Len()), slog.String("file", opts.Path))
	return table, nil
}

func (a *app) Close() {
	a.sessions.CloseAll()
	if err := a.store.Close(); err != nil {
		slog.Warn("close store", slog.Any("error", err))
	}
}
