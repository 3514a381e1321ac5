package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"mattermost.url":           "MATTERMOST_URL",
	"mattermost.scheme":        "MATTERMOST_SCHEME",
	"mattermost.port":          "MATTERMOST_PORT",
	"mattermost.token":         "MATTERMOST_TOKEN",
	"mattermost.team":          "MATTERMOST_TEAM",
	"mattermost.network_debug": "NETWORK_DEBUG",
	"bot.mention_name":         "MATTERMOST_BOT_NAME",
	"bot.poll_interval":        "BOT_POLL_INTERVAL",
	"bot.reconnect_after":      "BOT_RECONNECT_AFTER",
	"bot.restart_delay":        "BOT_RESTART_DELAY",
	"bot.restart_grace":        "BOT_RESTART_GRACE",
	"log.debug":                "APP_DEBUG",
	"log.dir":                  "LOG_DIR",
	"log.retention_days":       "LOG_RETENTION_DAYS",
}

// EnvVars returns the recognized environment variables, sorted.
func EnvVars() []string {
	vars := make([]string, 0, len(envBindings))
	for _, env := range envBindings {
		vars = append(vars, env)
	}
	sort.Strings(vars)
	return vars
}

// Load reads configuration from the environment, falling back to defaults.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads an optional config file (YAML, JSON or TOML), then applies
// environment overrides. The returned Config is usable for display even
// when validation fails.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return DefaultConfig(), fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return DefaultConfig(), fmt.Errorf("config file %s does not exist", path)
			}
			return DefaultConfig(), fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	})
	if err != nil {
		return DefaultConfig(), fmt.Errorf("apply config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mattermost.url", d.Mattermost.URL)
	v.SetDefault("mattermost.scheme", d.Mattermost.Scheme)
	v.SetDefault("mattermost.port", d.Mattermost.Port)
	v.SetDefault("mattermost.token", d.Mattermost.Token)
	v.SetDefault("mattermost.team", d.Mattermost.Team)
	v.SetDefault("mattermost.network_debug", d.Mattermost.NetworkDebug)
	v.SetDefault("bot.mention_name", d.Bot.MentionName)
	v.SetDefault("bot.poll_interval", d.Bot.PollInterval)
	v.SetDefault("bot.reconnect_after", d.Bot.ReconnectAfter)
	v.SetDefault("bot.restart_delay", d.Bot.RestartDelay)
	v.SetDefault("bot.restart_grace", d.Bot.RestartGrace)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.retention_days", d.Log.RetentionDays)
}
