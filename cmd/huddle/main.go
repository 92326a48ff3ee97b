// Command huddle is a fantasy football chat assistant for Sleeper leagues.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var envFile string
	root := &cobra.Command{
		Use:           "huddle",
		Short:         "huddle: fantasy football assistant for Sleeper leagues",
		Long:          "Chats about Sleeper users, leagues and rosters over HTTP, MCP, A2A, Telegram and the command line.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotenv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(
		serveCmd(),
		askCmd(),
		buyCmd(),
		playersCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
