package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for chatops-bot.
type Config struct {
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	Bot        BotConfig        `mapstructure:"bot"`
	Log        LogConfig        `mapstructure:"log"`
}

// MattermostConfig holds the chat server connection settings.
type MattermostConfig struct {
	// URL is the server host. A scheme prefix is accepted and wins over
	// Scheme.
	URL          string `mapstructure:"url"`
	Scheme       string `mapstructure:"scheme"`
	Port         int    `mapstructure:"port"`
	Token        string `mapstructure:"token"`
	Team         string `mapstructure:"team"`
	NetworkDebug bool   `mapstructure:"network_debug"`
}

// BotConfig holds the bot's behaviour settings.
type BotConfig struct {
	MentionName    string        `mapstructure:"mention_name"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ReconnectAfter time.Duration `mapstructure:"reconnect_after"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	RestartGrace   time.Duration `mapstructure:"restart_grace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug         bool   `mapstructure:"debug"`
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mattermost: MattermostConfig{
			Scheme: "https",
			Port:   443,
		},
		Bot: BotConfig{
			PollInterval:   10 * time.Second,
			ReconnectAfter: 15 * time.Minute,
			RestartDelay:   10 * time.Second,
			RestartGrace:   5 * time.Second,
		},
		Log: LogConfig{
			Dir:           "logs",
			RetentionDays: 30,
		},
	}
}

// ServerURL returns scheme://host:port for the Mattermost server.
func (c *Config) ServerURL() string {
	m := c.Mattermost
	host := strings.TrimRight(strings.TrimSpace(m.URL), "/")
	scheme := m.Scheme
	if i := strings.Index(host, "://"); i >= 0 {
		scheme = host[:i]
		host = host[i+3:]
	}
	if scheme == "" {
		scheme = "https"
	}
	if strings.Contains(host, ":") || m.Port == 0 {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, m.Port)
}
