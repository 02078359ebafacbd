// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from config.yaml.
// Secrets and connection strings can be overridden from the environment.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	DB      DBConfig      `yaml:"db"`
	Engine  EngineConfig  `yaml:"engine"`
	Notify  NotifyConfig  `yaml:"notify"`
	LogFile LogFileConfig `yaml:"log_file"`
}

// HTTPConfig holds settings for the gateway HTTP server.
type HTTPConfig struct {
	Port int `yaml:"port" env:"SWB_HTTP_PORT"`
}

// DBConfig holds record store connection settings. Driver is "sqlite" or
// "mysql"; Path applies to sqlite, Host/Port/Database to mysql.
type DBConfig struct {
	Driver   string `yaml:"driver" env:"SWB_DB_DRIVER"`
	Path     string `yaml:"path" env:"SWB_DB_PATH"`
	Host     string `yaml:"host" env:"SWB_DB_HOST"`
	Port     int    `yaml:"port" env:"SWB_DB_PORT"`
	User     string `yaml:"user" env:"SWB_DB_USER"`
	Password string `yaml:"password" env:"SWB_DB_PASSWORD"`
	Database string `yaml:"database" env:"SWB_DB_DATABASE"`
}

// EngineConfig holds protocol engine settings shared by all tenants.
type EngineConfig struct {
	Driver string `yaml:"driver" env:"SWB_ENGINE_DRIVER"`
	// DomainSuffix is appended to bare recipient identifiers when sending.
	DomainSuffix string `yaml:"domain_suffix"`
	// ReconnectDelaySec is the delay before reconnecting a session that had
	// completed a handshake before dropping.
	ReconnectDelaySec int `yaml:"reconnect_delay_sec"`
	// RetryDelaySec is the delay before retrying a first attempt that closed
	// without ever producing a scan code.
	RetryDelaySec int `yaml:"retry_delay_sec"`
	// Sim configures the built-in simulator engine (driver "sim").
	Sim SimConfig `yaml:"sim"`
}

// SimConfig controls the development simulator engine.
type SimConfig struct {
	ApprovalDelaySec int `yaml:"approval_delay_sec"`
}

// NotifyConfig configures operational notification sinks.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Digest  DigestConfig  `yaml:"digest"`
}

// SlackConfig holds Slack sink credentials.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token" env:"SWB_SLACK_BOT_TOKEN"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord sink credentials.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token" env:"SWB_DISCORD_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id"`
}

// DigestConfig schedules the daily activity digest.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 5-field cron expression
}

// LogFileConfig routes the process log to a rotating file when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path" env:"SWB_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment variables
// override file values for fields that carry env tags.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "switchboard.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" {
		c.DB.Database = "switchboard"
	}
	if c.Engine.Driver == "" {
		c.Engine.Driver = "sim"
	}
	if c.Engine.DomainSuffix == "" {
		c.Engine.DomainSuffix = "@s.whatsapp.net"
	}
	if c.Engine.ReconnectDelaySec == 0 {
		c.Engine.ReconnectDelaySec = 3
	}
	if c.Engine.RetryDelaySec == 0 {
		c.Engine.RetryDelaySec = 5
	}
	if c.Engine.Sim.ApprovalDelaySec == 0 {
		c.Engine.Sim.ApprovalDelaySec = 3
	}
	if c.Notify.Digest.Cron == "" {
		c.Notify.Digest.Cron = "0 9 * * *"
	}
	if c.LogFile.MaxSizeMB == 0 {
		c.LogFile.MaxSizeMB = 50
	}
	if c.LogFile.MaxBackups == 0 {
		c.LogFile.MaxBackups = 5
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		errs = append(errs, "db.path is required for sqlite")
	}
	if c.Notify.Slack.Enabled {
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required when slack is enabled")
		}
		if c.Notify.Slack.Channel == "" {
			errs = append(errs, "notify.slack.channel is required when slack is enabled")
		}
	}
	if c.Notify.Discord.Enabled {
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required when discord is enabled")
		}
		if c.Notify.Discord.ChannelID == "" {
			errs = append(errs, "notify.discord.channel_id is required when discord is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
