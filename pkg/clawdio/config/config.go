// Package config defines the Clawdio configuration tree and loads it from
// YAML, .env files, and the OS keyring.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/agent"
	"github.com/clawdio/clawdio/pkg/clawdio/bot"
	"github.com/clawdio/clawdio/pkg/clawdio/scheduler"
)

// Config holds the full bot configuration.
type Config struct {
	// Channels configures the chat transports.
	Channels ChannelsConfig `yaml:"channels"`

	// Claude configures the Claude Code CLI backend.
	Claude agent.ClaudeConfig `yaml:"claude"`

	// Ollama configures the Ollama HTTP backend.
	Ollama agent.OllamaConfig `yaml:"ollama"`

	// Access configures who can use the bot.
	Access bot.AccessConfig `yaml:"access"`

	// Bot configures session defaults.
	Bot BotConfig `yaml:"bot"`

	// Scheduler configures cron-driven prompts.
	Scheduler scheduler.Config `yaml:"scheduler"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ChannelsConfig holds per-transport settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig configures the Telegram long-poll transport.
type TelegramConfig struct {
	// Enabled turns the transport on.
	Enabled bool `yaml:"enabled"`

	// Token is the Bot API token from @BotFather.
	Token string `yaml:"token"`

	// PollTimeout is the long-poll hold duration. Default 30s.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// DiscordConfig configures the Discord gateway transport.
type DiscordConfig struct {
	// Enabled turns the transport on.
	Enabled bool `yaml:"enabled"`

	// Token is the Discord bot token.
	Token string `yaml:"token"`
}

// BotConfig configures session defaults.
type BotConfig struct {
	// DefaultMode is the backend new sessions start in ("claude" or
	// "ollama"). Default "claude".
	DefaultMode string `yaml:"default_mode"`

	// MaxExchanges bounds each session's conversation history. Default 10.
	MaxExchanges int `yaml:"max_exchanges"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{PollTimeout: 30 * time.Second},
		},
		Claude: agent.DefaultClaudeConfig(),
		Ollama: agent.DefaultOllamaConfig(),
		Bot: BotConfig{
			DefaultMode:  string(bot.ModeClaude),
			MaxExchanges: bot.DefaultMaxExchanges,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the config for problems that would prevent startup.
func (c *Config) Validate() error {
	if !c.Channels.Telegram.Enabled && !c.Channels.Discord.Enabled {
		return fmt.Errorf("no channel enabled: enable channels.telegram or channels.discord")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("channels.telegram.token is required when telegram is enabled")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("channels.discord.token is required when discord is enabled")
	}

	switch bot.Mode(c.Bot.DefaultMode) {
	case bot.ModeClaude, bot.ModeOllama:
	default:
		return fmt.Errorf("bot.default_mode must be %q or %q, got %q",
			bot.ModeClaude, bot.ModeOllama, c.Bot.DefaultMode)
	}

	if c.Claude.WorkingDir != "" {
		if info, err := os.Stat(c.Claude.WorkingDir); err != nil || !info.IsDir() {
			return fmt.Errorf("claude.working_dir %q is not a directory", c.Claude.WorkingDir)
		}
	}

	for i, job := range c.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduler.jobs[%d]: name is required", i)
		}
		if job.Cron == "" || job.Prompt == "" {
			return fmt.Errorf("scheduler job %q: cron and prompt are required", job.Name)
		}
		if job.Channel == "" || job.ChatID == "" {
			return fmt.Errorf("scheduler job %q: channel and chat_id are required", job.Name)
		}
	}

	return nil
}
