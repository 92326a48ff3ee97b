package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/stream"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// turnOutput is what ask and buy print in json and yaml mode.
type turnOutput struct {
	ChatID    string           `json:"chat_id" yaml:"chat_id"`
	Tool      string           `json:"tool,omitempty" yaml:"tool,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Fragments []fragmentOutput `json:"fragments" yaml:"fragments"`
}

type fragmentOutput struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     render.Kind `json:"kind" yaml:"kind"`
	Markdown string      `json:"markdown" yaml:"markdown"`
}

func askCmd() *cobra.Command {
	var chatID, output string
	cmd := &cobra.Command{
		Use:   "ask MESSAGE...",
		Short: "Run one chat turn and print the answer",
		Example: `  huddle ask "Tell me about the Sleeper user testuser"
  huddle ask --chat 01HX... --output yaml "Show league 1234"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rec := stream.NewRecorder()
			turn, err := a.engine.Submit(cmd.Context(), chatID, strings.Join(args, " "), rec)
			return printTurn(cmd.OutOrStdout(), output, turn, rec.Final(), err)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "continue an existing chat (needs a persistent store)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func buyCmd() *cobra.Command {
	var chatID, output string
	cmd := &cobra.Command{
		Use:     "buy SYMBOL PRICE AMOUNT",
		Short:   "Run the simulated stock purchase",
		Example: "  huddle buy AAPL 150.25 10",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			p, err := parsePurchase(strings.Join(args, " "))
			if err != nil {
				return err
			}

			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rec := stream.NewRecorder()
			turn, err := a.engine.ConfirmPurchase(cmd.Context(), chatID, p, rec)
			return printTurn(cmd.OutOrStdout(), output, turn, rec.Final(), err)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "record the purchase in an existing chat")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func checkOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

// printTurn writes the final fragments of a turn. The turn error is
// returned after printing so partial output is not lost.
func printTurn(w io.Writer, format string, turn chat.Turn, final []stream.Event, turnErr error) error {
	out := turnOutput{ChatID: turn.ChatID, Tool: turn.Tool, Fragments: make([]fragmentOutput, 0, len(final))}
	for _, ev := range final {
		out.Fragments = append(out.Fragments, fragmentOutput{
			ID:       ev.Fragment.ID,
			Kind:     ev.Fragment.Kind(),
			Markdown: ev.Fragment.Markdown(),
		})
	}
	if turnErr != nil {
		out.Error = turnErr.Error()
	}

	var err error
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(out)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(out)
		if err == nil {
			err = enc.Close()
		}
	default:
		if md := chat.Markdown(final); md != "" {
			_, err = fmt.Fprintln(w, md)
		}
	}
	if err != nil {
		return err
	}
	return turnErr
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "huddle", version)
		},
	}
}
