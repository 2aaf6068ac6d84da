package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/bot"
	"github.com/clawdio/clawdio/pkg/clawdio/scheduler"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Bot.DefaultMode != string(bot.ModeClaude) {
		t.Errorf("default mode = %q", cfg.Bot.DefaultMode)
	}
	if cfg.Bot.MaxExchanges != bot.DefaultMaxExchanges {
		t.Errorf("max exchanges = %d", cfg.Bot.MaxExchanges)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("ollama url = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Channels.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("poll timeout = %v", cfg.Channels.Telegram.PollTimeout)
	}
}

func TestParseOverlay(t *testing.T) {
	cfg, err := Parse([]byte(`
channels:
  telegram:
    enabled: true
    token: "123:abc"
    poll_timeout: 10s
claude:
  timeout: 10m
ollama:
  model: mistral
access:
  allowed_users: ["42", "7"]
bot:
  default_mode: ollama
  max_exchanges: 5
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Channels.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.Telegram.PollTimeout != 10*time.Second {
		t.Errorf("poll timeout = %v", cfg.Channels.Telegram.PollTimeout)
	}
	if cfg.Claude.Timeout != 10*time.Minute {
		t.Errorf("claude timeout = %v", cfg.Claude.Timeout)
	}
	if cfg.Ollama.Model != "mistral" {
		t.Errorf("ollama model = %q", cfg.Ollama.Model)
	}
	if len(cfg.Access.AllowedUsers) != 2 {
		t.Errorf("allowed users = %v", cfg.Access.AllowedUsers)
	}
	if cfg.Bot.DefaultMode != "ollama" || cfg.Bot.MaxExchanges != 5 {
		t.Errorf("bot = %+v", cfg.Bot)
	}

	t.Run("untouched sections keep defaults", func(t *testing.T) {
		if cfg.Claude.Binary != "claude" {
			t.Errorf("claude binary = %q", cfg.Claude.Binary)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = "123:abc"
		cfg.Claude.WorkingDir = ""
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{
			"no channel enabled",
			func(c *Config) { c.Channels.Telegram.Enabled = false },
			"no channel enabled",
		},
		{
			"telegram without token",
			func(c *Config) { c.Channels.Telegram.Token = "" },
			"token is required",
		},
		{
			"discord without token",
			func(c *Config) { c.Channels.Discord.Enabled = true },
			"discord.token is required",
		},
		{
			"bad default mode",
			func(c *Config) { c.Bot.DefaultMode = "gpt" },
			"default_mode",
		},
		{
			"missing working dir",
			func(c *Config) { c.Claude.WorkingDir = "/does/not/exist" },
			"not a directory",
		},
		{
			"scheduler job without cron",
			func(c *Config) {
				c.Scheduler.Jobs = append(c.Scheduler.Jobs, schedulerJob("daily", "", "report"))
			},
			"cron and prompt",
		},
		{
			"scheduler job without name",
			func(c *Config) {
				c.Scheduler.Jobs = append(c.Scheduler.Jobs, schedulerJob("", "@daily", "report"))
			},
			"name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CLAWDIO_TEST_TOKEN", "tok-123")

	out := expandEnvVars("token: ${CLAWDIO_TEST_TOKEN}\nother: ${CLAWDIO_TEST_UNSET}")
	if !strings.Contains(out, "tok-123") {
		t.Errorf("set variable not expanded: %q", out)
	}
	if !strings.Contains(out, "${CLAWDIO_TEST_UNSET}") {
		t.Errorf("unset variable should keep its placeholder: %q", out)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("CLAWDIO_TEST_TG", "999:xyz")

	path := filepath.Join(t.TempDir(), "clawdio.yaml")
	data := "channels:\n  telegram:\n    enabled: true\n    token: ${CLAWDIO_TEST_TG}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "999:xyz" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
}

func TestResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("ALLOWED_USER_IDS", "1, 2,3,")
	t.Setenv("OLLAMA_URL", "http://ollama.lan:11434")
	t.Setenv("OLLAMA_MODEL", "qwen2.5")

	cfg := DefaultConfig()
	resolveSecrets(cfg)

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if len(cfg.Access.AllowedUsers) != 3 || cfg.Access.AllowedUsers[2] != "3" {
		t.Errorf("allowed users = %v", cfg.Access.AllowedUsers)
	}
	if cfg.Ollama.BaseURL != "http://ollama.lan:11434" || cfg.Ollama.Model != "qwen2.5" {
		t.Errorf("ollama = %+v", cfg.Ollama)
	}

	t.Run("explicit config wins over env list", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Access.AllowedUsers = []string{"42"}
		resolveSecrets(cfg)
		if len(cfg.Access.AllowedUsers) != 1 {
			t.Errorf("allowed users = %v", cfg.Access.AllowedUsers)
		}
	})

	t.Run("yaml ollama settings win over env", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Ollama.BaseURL = "http://yaml-host:11434"
		cfg.Ollama.Model = "phi4"
		resolveSecrets(cfg)
		if cfg.Ollama.BaseURL != "http://yaml-host:11434" {
			t.Errorf("base URL = %q, env should not override YAML", cfg.Ollama.BaseURL)
		}
		if cfg.Ollama.Model != "phi4" {
			t.Errorf("model = %q, env should not override YAML", cfg.Ollama.Model)
		}
	})
}

func TestSaveToFileSanitizesSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "real-secret")

	cfg := DefaultConfig()
	cfg.Channels.Telegram.Token = "real-secret"

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "real-secret") {
		t.Error("secret written in plaintext despite matching env var")
	}
	if !strings.Contains(string(data), "${TELEGRAM_BOT_TOKEN}") {
		t.Error("expected env reference in saved config")
	}

	t.Run("owner-only permissions", func(t *testing.T) {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("permissions = %04o, want 0600", perm)
		}
	})
}

func schedulerJob(name, cronExpr, prompt string) scheduler.JobConfig {
	return scheduler.JobConfig{Name: name, Cron: cronExpr, Prompt: prompt, Channel: "telegram", ChatID: "1"}
}
