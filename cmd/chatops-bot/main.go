package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avarcorg/chatops-bot/internal/cli"
)

// errReported is returned by commands that already printed their failure.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatops-bot",
		Short:         "Mattermost ChatOps bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file path (optional, YAML/JSON/TOML).")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConsoleCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
