package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/avarcorg/chatops-bot/internal/config"
)

// RunStatus writes a styled report of the effective configuration and
// reports whether it is valid.
func RunStatus(w io.Writer, cfg *config.Config, cfgPath string) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, Title("Status"))
	fmt.Fprintln(w)

	if cfgPath != "" {
		fmt.Fprintf(w, "  %-16s %s  %s\n", "Config file", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))
	}

	m := cfg.Mattermost
	fmt.Fprintf(w, "  %-16s %s\n", "Server", cfg.ServerURL())
	fmt.Fprintf(w, "  %-16s %s\n", "Team", orDash(m.Team))
	fmt.Fprintf(w, "  %-16s %s\n", "Token", maskSecret(m.Token))
	fmt.Fprintf(w, "  %-16s %s\n", "Mention name", orDash(cfg.Bot.MentionName))
	fmt.Fprintf(w, "  %-16s %s\n", "Poll interval", cfg.Bot.PollInterval)
	fmt.Fprintf(w, "  %-16s %s\n", "Reconnect after", cfg.Bot.ReconnectAfter)
	fmt.Fprintf(w, "  %-16s %s\n", "Restart delay", cfg.Bot.RestartDelay)
	fmt.Fprintf(w, "  %-16s %s  %s\n", "Log dir", StatusBadge(fileExists(cfg.Log.Dir)), DimStyle.Render(cfg.Log.Dir))
	fmt.Fprintf(w, "  %-16s %s\n", "Debug", StatusBadge(cfg.Log.Debug))
	fmt.Fprintf(w, "  %-16s %s\n", "Network debug", StatusBadge(m.NetworkDebug))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  "+BoldStyle.Render("Environment"))
	for _, name := range config.EnvVars() {
		_, set := os.LookupEnv(name)
		fmt.Fprintf(w, "    %s  %s\n", StatusBadge(set), name)
	}
	fmt.Fprintln(w)

	problems := cfg.Problems()
	if len(problems) == 0 {
		fmt.Fprintln(w, "  "+OkStyle.Render("Configuration is valid"))
		fmt.Fprintln(w)
		return true
	}
	fmt.Fprintln(w, "  "+ErrStyle.Render("Configuration problems"))
	for _, p := range problems {
		fmt.Fprintf(w, "    %s %s\n", ErrStyle.Render("•"), p)
	}
	fmt.Fprintln(w)
	return false
}

// maskSecret keeps the last four characters of a token visible.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "-"
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
