package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/huddle/internal/players"
	"github.com/anatolykoptev/huddle/internal/sleeper"
)

func playersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Manage the player table used to name roster players",
	}
	cmd.AddCommand(playersSyncCmd())
	return cmd
}

func playersSyncCmd() *cobra.Command {
	var sport, out string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the full Sleeper player table",
		Long:  "Downloads every player of a sport and writes a trimmed table usable as HUDDLE_PLAYERS_FILE.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			client, err := sleeper.New(sleeper.OptionsFromConfig(cfg.Sleeper))
			if err != nil {
				return err
			}

			raw, err := client.Players(cmd.Context(), sport)
			if err != nil {
				return fmt.Errorf("download players: %w", err)
			}
			table, err := players.Read(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			if err := table.WriteFile(out); err != nil {
				return err
			}
			slog.Info("player table written", slog.String("file", out), slog.Int("players", table.Len()))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d players to %s\n", table.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&sport, "sport", "nfl", "sport to download")
	cmd.Flags().StringVar(&out, "out", "players.json", "output file")
	return cmd
}
