package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avarcorg/chatops-bot/internal/cli"
	"github.com/avarcorg/chatops-bot/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadFrom(cfgPath)
			if cfg == nil {
				return err
			}
			if !cli.RunStatus(os.Stdout, cfg, cfgPath) {
				return errReported
			}
			return nil
		},
	}
}

func newConsoleCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Try the bot's replies offline in an interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				cfgPath, _ := cmd.Flags().GetString("config")
				// Validation errors are irrelevant offline.
				if cfg, _ := config.LoadFrom(cfgPath); cfg != nil {
					name = cfg.Bot.MentionName
				}
			}
			if name == "" {
				name = "bot"
			}
			return cli.RunConsole(cmd.Context(), name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Mention name to answer to (default: MATTERMOST_BOT_NAME or \"bot\")")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cli.TitleStyle.Render(
				fmt.Sprintf("  %s %s v%s", cli.Logo, cli.AppName, cli.Version),
			))
		},
	}
}
