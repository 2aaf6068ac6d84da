package commands

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/clawdio/clawdio/pkg/clawdio/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newConfigCmd creates the `clawdio config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
	}
	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetTokenCmd(),
		newConfigDeleteTokenCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default clawdio.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "clawdio.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.SaveToFile(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Edit it and start with: clawdio serve\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration without secrets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "telegram: enabled=%v token=%s\n",
				cfg.Channels.Telegram.Enabled, maskSecret(cfg.Channels.Telegram.Token))
			fmt.Fprintf(out, "discord: enabled=%v token=%s\n",
				cfg.Channels.Discord.Enabled, maskSecret(cfg.Channels.Discord.Token))
			fmt.Fprintf(out, "claude: binary=%s working_dir=%s timeout=%s\n",
				cfg.Claude.Binary, cfg.Claude.WorkingDir, cfg.Claude.Timeout)
			fmt.Fprintf(out, "ollama: url=%s model=%s timeout=%s\n",
				cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.Timeout)
			fmt.Fprintf(out, "access: %d allowed users\n", len(cfg.Access.AllowedUsers))
			fmt.Fprintf(out, "bot: mode=%s max_exchanges=%d\n",
				cfg.Bot.DefaultMode, cfg.Bot.MaxExchanges)
			fmt.Fprintf(out, "scheduler: enabled=%v jobs=%d\n",
				cfg.Scheduler.Enabled, len(cfg.Scheduler.Jobs))
			return nil
		},
	}
}

func newConfigSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token <name>",
		Short: "Store a secret in the OS keyring",
		Long: `Prompt for a secret without echoing and store it in the OS keyring.
Valid names: ` + strings.Join(config.KeyringSecrets(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !slices.Contains(config.KeyringSecrets(), name) {
				return fmt.Errorf("unknown secret %q, valid: %s", name, strings.Join(config.KeyringSecrets(), ", "))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Value for %s: ", name)
			value, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			if len(value) == 0 {
				return fmt.Errorf("empty value, nothing stored")
			}

			if err := config.StoreKeyring(name, string(value)); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stored in the OS keyring.\n", name)
			return nil
		},
	}
}

func newConfigDeleteTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-token <name>",
		Short: "Remove a secret from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteKeyring(args[0]); err != nil {
				return fmt.Errorf("deleting from keyring: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed from the OS keyring.\n", args[0])
			return nil
		},
	}
}

// maskSecret shows whether a secret is set without revealing it.
func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "(set)"
}
