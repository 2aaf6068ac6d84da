// loader.go reads YAML config with .env loading, ${VAR} expansion, and
// secret resolution from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} references in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadFromFile reads and parses a YAML configuration file. .env files are
// loaded first and ${VAR} references expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	checkFilePermissions(path)

	return cfg, nil
}

// Parse parses YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes a Config as YAML with owner-only permissions. Secrets
// that match an environment variable are written as references.
func SaveToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Channels.Telegram.Token = sanitizeSecret(cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	sanitized.Channels.Discord.Token = sanitizeSecret(cfg.Channels.Discord.Token, "DISCORD_BOT_TOKEN")
	sanitized.Claude.APIKey = sanitizeSecret(cfg.Claude.APIKey, "ANTHROPIC_API_KEY")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches standard locations for a config file.
func FindConfigFile() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		"clawdio.yaml",
		"clawdio.yml",
		"config.yaml",
		"config.yml",
	}
	if home != "" {
		candidates = append(candidates, home+"/.config/clawdio/config.yaml")
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files. Existing env vars are never overwritten.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} references with environment values. Unset
// variables keep the placeholder so validation can point at them.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// resolveSecrets fills secrets from the keyring or environment when the
// config value is empty or an unexpanded reference.
func resolveSecrets(cfg *Config) {
	resolve := func(current *string, keyringName string, envVars ...string) {
		if *current != "" && !isEnvReference(*current) {
			return
		}
		if val := GetKeyring(keyringName); val != "" {
			*current = val
			return
		}
		for _, name := range envVars {
			if val := os.Getenv(name); val != "" {
				*current = val
				return
			}
		}
	}

	resolve(&cfg.Channels.Telegram.Token, keyringTelegramToken, "TELEGRAM_BOT_TOKEN")
	resolve(&cfg.Channels.Discord.Token, keyringDiscordToken, "DISCORD_BOT_TOKEN")
	resolve(&cfg.Claude.APIKey, keyringAnthropicKey, "ANTHROPIC_API_KEY")

	// The original env surface also configured these without YAML.
	if v := os.Getenv("ALLOWED_USER_IDS"); v != "" && len(cfg.Access.AllowedUsers) == 0 {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Access.AllowedUsers = append(cfg.Access.AllowedUsers, id)
			}
		}
	}
	if v := os.Getenv("WORKING_DIRECTORY"); v != "" && cfg.Claude.WorkingDir == "" {
		cfg.Claude.WorkingDir = v
	}
	// Like every other setting, env fills gaps: a value set in YAML wins.
	// These fields carry non-empty defaults, so "unset" means "still the
	// default" rather than "".
	defaults := DefaultConfig()
	if v := os.Getenv("OLLAMA_URL"); v != "" && cfg.Ollama.BaseURL == defaults.Ollama.BaseURL {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" && cfg.Ollama.Model == defaults.Ollama.Model {
		cfg.Ollama.Model = v
	}
}

// sanitizeSecret turns a secret back into an env reference when the
// environment already carries the same value.
func sanitizeSecret(value, envVar string) string {
	if value == "" || isEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// isEnvReference reports whether s is an unexpanded ${VAR} placeholder.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${")
}

// checkFilePermissions warns when the config file is group/world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
