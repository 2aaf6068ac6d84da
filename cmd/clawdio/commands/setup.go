package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/clawdio/clawdio/pkg/clawdio/config"
	"github.com/spf13/cobra"
)

// newSetupCmd creates the `clawdio setup` interactive wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walk through the initial configuration and write clawdio.yaml.
Tokens go to the OS keyring when one is available; otherwise the
config references environment variables.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()

	var (
		telegramToken string
		allowedIDs    string
		workingDir    = cfg.Claude.WorkingDir
		ollamaURL     = cfg.Ollama.BaseURL
		ollamaModel   = cfg.Ollama.Model
		defaultMode   = cfg.Bot.DefaultMode
		enableDiscord bool
		discordToken  string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather. Leave empty to set later via 'clawdio config set-token'.").
				EchoMode(huh.EchoModePassword).
				Value(&telegramToken),
			huh.NewInput().
				Title("Allowed user IDs").
				Description("Comma-separated Telegram user IDs the bot will answer.").
				Value(&allowedIDs),
			huh.NewInput().
				Title("Working directory").
				Description("Where the Claude CLI runs.").
				Value(&workingDir),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default mode").
				Options(huh.NewOptions("claude", "ollama")...).
				Value(&defaultMode),
			huh.NewInput().
				Title("Ollama URL").
				Value(&ollamaURL),
			huh.NewInput().
				Title("Ollama model").
				Value(&ollamaModel),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable Discord too?").
				Value(&enableDiscord),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if enableDiscord {
		discordForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
		))
		if err := discordForm.Run(); err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}
	}

	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Discord.Enabled = enableDiscord
	cfg.Claude.WorkingDir = strings.TrimSpace(workingDir)
	cfg.Ollama.BaseURL = strings.TrimSpace(ollamaURL)
	cfg.Ollama.Model = strings.TrimSpace(ollamaModel)
	cfg.Bot.DefaultMode = defaultMode

	for _, id := range strings.Split(allowedIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Access.AllowedUsers = append(cfg.Access.AllowedUsers, id)
		}
	}

	// Prefer the keyring for tokens; fall back to the config file with a
	// note about the env alternative.
	storeToken := func(name, value, label string) {
		if value == "" {
			return
		}
		if config.KeyringAvailable() {
			if err := config.StoreKeyring(name, value); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s stored in the OS keyring.\n", label)
				return
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keyring unavailable; %s written to the config file.\n", label)
		switch name {
		case "telegram_token":
			cfg.Channels.Telegram.Token = value
		case "discord_token":
			cfg.Channels.Discord.Token = value
		}
	}
	storeToken("telegram_token", strings.TrimSpace(telegramToken), "Telegram token")
	storeToken("discord_token", strings.TrimSpace(discordToken), "Discord token")

	path := "clawdio.yaml"
	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title(path + " already exists. Overwrite?").Value(&overwrite),
		))
		if err := confirm.Run(); err != nil || !overwrite {
			return fmt.Errorf("setup aborted, %s left untouched", path)
		}
	}

	if err := config.SaveToFile(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s. Start with: clawdio serve\n", path)
	return nil
}
