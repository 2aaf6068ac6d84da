package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/clawdio/clawdio/pkg/clawdio/agent"
	"github.com/clawdio/clawdio/pkg/clawdio/bot"
	"github.com/clawdio/clawdio/pkg/clawdio/channels"
	"github.com/spf13/cobra"
)

// localSender is the pseudo sender ID used by the terminal session.
const localSender = "local"

// newChatCmd creates the `clawdio chat` command: the same pipeline the chat
// transports use, driven from the terminal.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the backends from the terminal",
		Long: `Run the message pipeline locally. With a message argument, send it
once and print the reply; without arguments, start an interactive
session. Slash commands work exactly as they do in chat.

Examples:
  clawdio chat "what does cmd/clawdio/main.go do?"
  clawdio chat`,
		RunE: runChat,
	}
}

// terminal implements channels.Channel by printing replies to stdout.
type terminal struct {
	out io.Writer
}

func (t *terminal) Name() string                      { return "terminal" }
func (t *terminal) Connect(ctx context.Context) error { return nil }
func (t *terminal) Disconnect() error                 { return nil }
func (t *terminal) IsConnected() bool                 { return true }
func (t *terminal) Health() channels.HealthStatus     { return channels.HealthStatus{Connected: true} }

func (t *terminal) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	fmt.Fprintln(t.out, msg.Content)
	return nil
}

var _ channels.Channel = (*terminal)(nil)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	claude := agent.NewClaude(cfg.Claude, logger)
	ollama := agent.NewOllama(cfg.Ollama, logger)

	// The terminal session bypasses the chat allow-list.
	guard := bot.NewAccessGuard(bot.AccessConfig{AllowedUsers: []string{localSender}}, logger)
	b := bot.New(guard, claude, ollama, bot.Options{
		DefaultMode:  bot.Mode(cfg.Bot.DefaultMode),
		WorkingDir:   cfg.Claude.WorkingDir,
		MaxExchanges: cfg.Bot.MaxExchanges,
	}, logger)

	term := &terminal{out: cmd.OutOrStdout()}
	b.RegisterChannel(term)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deliver := func(text string) {
		b.HandleMessage(ctx, &channels.IncomingMessage{
			Channel: term.Name(),
			From:    localSender,
			ChatID:  localSender,
			Content: text,
		})
	}

	// One-shot mode.
	if len(args) > 0 {
		deliver(strings.Join(args, " "))
		return nil
	}

	// Interactive mode.
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "clawdio> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Interactive session. /help for commands, Ctrl+D to exit.")

	for {
		line, err := rl.Readline()
		switch err {
		case nil:
		case readline.ErrInterrupt:
			continue
		default: // io.EOF
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		deliver(line)
	}
}
