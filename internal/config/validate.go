package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string

	// mattermost
	m := c.Mattermost
	if strings.TrimSpace(m.URL) == "" {
		errs = append(errs, "mattermost.url (MATTERMOST_URL) is required")
	}
	if m.Token == "" {
		errs = append(errs, "mattermost.token (MATTERMOST_TOKEN) is required")
	}
	if m.Team == "" {
		errs = append(errs, "mattermost.team (MATTERMOST_TEAM) is required")
	}
	if m.Scheme != "http" && m.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("mattermost.scheme must be http or https, got %q", m.Scheme))
	}
	if m.Port < 1 || m.Port > 65535 {
		errs = append(errs, fmt.Sprintf("mattermost.port must be between 1 and 65535, got %d", m.Port))
	}

	// bot
	b := c.Bot
	if b.PollInterval <= 0 {
		errs = append(errs, "bot.poll_interval must be positive")
	}
	if b.ReconnectAfter <= 0 {
		errs = append(errs, "bot.reconnect_after must be positive")
	}
	if b.RestartDelay <= 0 {
		errs = append(errs, "bot.restart_delay must be positive")
	}
	if b.RestartGrace < 0 {
		errs = append(errs, "bot.restart_grace must be non-negative")
	}

	// log
	if c.Log.Dir == "" {
		errs = append(errs, "log.dir is required")
	}
	if c.Log.RetentionDays < 0 {
		errs = append(errs, "log.retention_days must be non-negative")
	}

	return errs
}

// Problems lists every validation failure, one entry per problem.
func (c *Config) Problems() []string {
	return c.validate()
}
