// commands.go implements the slash command surface:
//
//	/start                 - welcome message and current mode
//	/status                - backend health, session counters, uptime
//	/clear                 - reset the Claude conversation
//	/ollama <message>      - one-off Ollama exchange, regardless of mode
//	/ollama_mode           - toggle between claude and ollama modes
//	/ollama_models         - list models available on the Ollama server
//	/ollama_model <name>   - select the session's Ollama model
//	/ollama_clear          - reset the Ollama conversation
//	/help                  - command reference
//
// Anything else starting with "/" is not claimed and falls through to the
// active backend as free text.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/clawdio/clawdio/pkg/clawdio/agent"
	"github.com/clawdio/clawdio/pkg/clawdio/channels"
)

// CommandResult carries a command's reply. Handled false means the message
// was not a recognized command.
type CommandResult struct {
	Response string
	Handled  bool
}

// IsCommand reports whether the message starts with the command marker.
func IsCommand(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "/")
}

// dispatchCommand parses and executes a slash command. The verb's "@botname"
// suffix, which group chats append, is stripped before matching.
func (b *Bot) dispatchCommand(ctx context.Context, session *Session, msg *channels.IncomingMessage) CommandResult {
	content := strings.TrimSpace(msg.Content)
	if !IsCommand(content) {
		return CommandResult{}
	}

	parts := strings.Fields(content)
	verb := strings.ToLower(parts[0])
	if at := strings.Index(verb, "@"); at > 0 {
		verb = verb[:at]
	}
	args := parts[1:]

	switch verb {
	case "/start":
		return CommandResult{Response: b.startCommand(session), Handled: true}

	case "/status":
		return CommandResult{Response: b.statusCommand(ctx, session), Handled: true}

	case "/clear":
		session.ClearClaude()
		return CommandResult{Response: "Claude conversation cleared. The next message starts fresh.", Handled: true}

	case "/ollama":
		if len(args) == 0 {
			return CommandResult{Response: "Usage: /ollama <message>", Handled: true}
		}
		return CommandResult{Response: b.askOllama(ctx, session, strings.Join(args, " ")), Handled: true}

	case "/ollama_mode":
		return CommandResult{Response: b.toggleModeCommand(session), Handled: true}

	case "/ollama_models":
		return CommandResult{Response: b.listModelsCommand(ctx), Handled: true}

	case "/ollama_model":
		if len(args) == 0 {
			return CommandResult{Response: "Usage: /ollama_model <name>", Handled: true}
		}
		return CommandResult{Response: b.selectModelCommand(ctx, session, args[0]), Handled: true}

	case "/ollama_clear":
		session.ClearOllama()
		return CommandResult{Response: "Ollama conversation cleared.", Handled: true}

	case "/help":
		return CommandResult{Response: helpText, Handled: true}
	}

	// Unknown verbs are treated as free text; Claude prompts legitimately
	// start with "/" (paths, for one).
	return CommandResult{}
}

const helpText = `Commands:
/start - Show the welcome message
/status - Backend health and session info
/clear - Reset the Claude conversation
/ollama <message> - Ask Ollama once, without switching modes
/ollama_mode - Toggle between claude and ollama modes
/ollama_models - List available Ollama models
/ollama_model <name> - Select the Ollama model for this session
/ollama_clear - Reset the Ollama conversation
/help - This message

Anything else is sent to the active backend.`

func (b *Bot) startCommand(session *Session) string {
	return fmt.Sprintf(
		"Hi! I bridge this chat to a coding assistant.\n\nActive mode: %s\nWorking directory: %s\n\nSend a message to get started, or /help for commands.",
		session.Mode(), session.WorkingDir(),
	)
}

func (b *Bot) toggleModeCommand(session *Session) string {
	switch session.Mode() {
	case ModeOllama:
		session.SetMode(ModeClaude)
		return "Mode switched to claude. Free-text messages now go to Claude Code."
	default:
		session.SetMode(ModeOllama)
		return "Mode switched to ollama. Free-text messages now go to Ollama."
	}
}

func (b *Bot) listModelsCommand(ctx context.Context) string {
	names, err := b.ollama.ListModels(ctx)
	if err != nil {
		return agent.UserMessage(err)
	}
	if len(names) == 0 {
		return "No models installed on the Ollama server."
	}

	var sb strings.Builder
	sb.WriteString("Available models:\n")
	for _, name := range names {
		sb.WriteString("- " + name + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// selectModelCommand validates the name against the server's list before
// storing it, so a typo is caught here instead of on the next message.
func (b *Bot) selectModelCommand(ctx context.Context, session *Session, name string) string {
	names, err := b.ollama.ListModels(ctx)
	if err != nil {
		return agent.UserMessage(err)
	}

	for _, n := range names {
		if n == name {
			session.SetModel(name)
			return fmt.Sprintf("Ollama model set to %s.", name)
		}
	}

	reply := fmt.Sprintf("Model %q is not installed.", name)
	if len(names) > 0 {
		reply += " Available:\n- " + strings.Join(names, "\n- ")
	}
	return reply
}

func (b *Bot) statusCommand(ctx context.Context, session *Session) string {
	var sb strings.Builder

	claudeLine := "ok"
	if v, ok := b.claude.(versioner); ok {
		if version, err := v.Version(ctx); err == nil {
			claudeLine = version
		} else {
			claudeLine = "unavailable: " + agent.UserMessage(err)
		}
	} else if err := b.claude.Healthcheck(ctx); err != nil {
		claudeLine = "unavailable"
	}

	ollamaLine := "ok"
	if err := b.ollama.Healthcheck(ctx); err != nil {
		ollamaLine = "unreachable"
	}

	model := session.Model()
	if model == "" {
		model = "(server default)"
	}

	fmt.Fprintf(&sb, "Claude CLI: %s\n", claudeLine)
	fmt.Fprintf(&sb, "Ollama: %s\n", ollamaLine)
	fmt.Fprintf(&sb, "Mode: %s\n", session.Mode())
	fmt.Fprintf(&sb, "Ollama model: %s\n", model)
	fmt.Fprintf(&sb, "Working directory: %s\n", session.WorkingDir())
	fmt.Fprintf(&sb, "History: %d claude / %d ollama exchanges\n",
		session.ClaudeExchanges(), session.OllamaExchanges())
	fmt.Fprintf(&sb, "Sessions: %d active, %d users allowed\n", b.sessions.Count(), b.guard.Count())
	fmt.Fprintf(&sb, "Uptime: %s", formatUptime(b.Uptime()))
	return sb.String()
}
