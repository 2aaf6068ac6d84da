// Package bot wires the pieces together: every incoming message passes the
// access guard, resolves to the sender's session, and is routed either to a
// slash command or to the session's active backend. Replies go back out
// through the transport the message arrived on.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/agent"
	"github.com/clawdio/clawdio/pkg/clawdio/channels"
)

// Options configures the bot's session defaults.
type Options struct {
	// DefaultMode is the backend new sessions start in. Default "claude".
	DefaultMode Mode

	// WorkingDir is the default Claude working directory for new sessions.
	WorkingDir string

	// MaxExchanges bounds each session history. Default 10.
	MaxExchanges int
}

// Bot is the message pipeline shared by all transports.
type Bot struct {
	guard    *AccessGuard
	sessions *SessionStore
	claude   agent.Agent
	ollama   agent.ModelLister
	logger   *slog.Logger

	startedAt time.Time

	chMu       sync.RWMutex
	transports map[string]channels.Channel
}

// versioner is implemented by backends that report a CLI version string.
type versioner interface {
	Version(ctx context.Context) (string, error)
}

// New creates the bot. claude and ollama are the two backends every session
// switches between.
func New(guard *AccessGuard, claude agent.Agent, ollama agent.ModelLister, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		guard:      guard,
		sessions:   NewSessionStore(opts.DefaultMode, opts.WorkingDir, opts.MaxExchanges, logger),
		claude:     claude,
		ollama:     ollama,
		logger:     logger.With("component", "bot"),
		startedAt:  time.Now(),
		transports: make(map[string]channels.Channel),
	}
}

// RegisterChannel makes a transport available for outbound replies. Called
// once per transport before it starts delivering messages.
func (b *Bot) RegisterChannel(ch channels.Channel) {
	b.chMu.Lock()
	defer b.chMu.Unlock()
	b.transports[ch.Name()] = ch
}

// Sessions exposes the session store, for status reporting.
func (b *Bot) Sessions() *SessionStore { return b.sessions }

// HandleMessage processes one incoming message end to end. It blocks until
// the reply has been sent; transports rely on that to know when a message is
// fully dispatched.
func (b *Bot) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	logger := b.logger.With("channel", msg.Channel, "sender", msg.From)

	if !b.guard.Allowed(msg.From) {
		logger.Warn("unauthorized sender denied")
		b.reply(ctx, msg, b.guard.DenialNotice(msg.From))
		return
	}

	session := b.sessions.GetOrCreate(msg.Channel, msg.From)

	// One exchange in flight per sender. Polling transports already deliver
	// per-sender messages serially; push transports need the lock.
	session.Lock()
	defer session.Unlock()

	b.sendTyping(ctx, msg)

	if result := b.dispatchCommand(ctx, session, msg); result.Handled {
		if result.Response != "" {
			b.reply(ctx, msg, result.Response)
		}
		return
	}

	b.reply(ctx, msg, b.freeText(ctx, session, msg.Content))
}

// freeText routes a non-command message to the session's active backend.
func (b *Bot) freeText(ctx context.Context, session *Session, prompt string) string {
	switch session.Mode() {
	case ModeOllama:
		return b.askOllama(ctx, session, prompt)
	default:
		return b.askClaude(ctx, session, prompt)
	}
}

// askClaude runs one Claude exchange. History records and the continuation
// marker advance only on success.
func (b *Bot) askClaude(ctx context.Context, session *Session, prompt string) string {
	resp, err := b.claude.Invoke(ctx, agent.Request{
		Prompt:         prompt,
		WorkingDir:     session.WorkingDir(),
		ContinuationID: session.ContinuationID(),
	})
	if err != nil {
		b.logger.Error("claude invocation failed", "sender", session.ID, "err", err)
		return agent.UserMessage(err)
	}

	session.RecordClaude(prompt, resp.Text, resp.ContinuationID)
	return resp.Text
}

// askOllama runs one Ollama exchange with the session's history as context.
func (b *Bot) askOllama(ctx context.Context, session *Session, prompt string) string {
	resp, err := b.ollama.Invoke(ctx, agent.Request{
		Prompt:  prompt,
		History: session.OllamaTurns(),
		Model:   session.Model(),
	})
	if err != nil {
		b.logger.Error("ollama invocation failed", "sender", session.ID, "err", err)
		return agent.UserMessage(err)
	}

	session.RecordOllama(prompt, resp.Text)
	return resp.Text
}

// reply sends text back to the chat the message came from. Transports split
// oversize replies to their own limits.
func (b *Bot) reply(ctx context.Context, msg *channels.IncomingMessage, text string) {
	b.chMu.RLock()
	ch, ok := b.transports[msg.Channel]
	b.chMu.RUnlock()
	if !ok {
		b.logger.Error("no transport registered for reply", "channel", msg.Channel)
		return
	}

	if err := ch.Send(ctx, msg.ChatID, &channels.OutgoingMessage{Content: text, ReplyTo: msg.ID}); err != nil {
		b.logger.Error("sending reply failed", "channel", msg.Channel, "chat", msg.ChatID, "err", err)
	}
}

// sendTyping shows a typing indicator while the backend works, where the
// transport supports one.
func (b *Bot) sendTyping(ctx context.Context, msg *channels.IncomingMessage) {
	b.chMu.RLock()
	ch, ok := b.transports[msg.Channel]
	b.chMu.RUnlock()
	if !ok {
		return
	}
	if pc, ok := ch.(channels.PresenceChannel); ok {
		if err := pc.SendTyping(ctx, msg.ChatID); err != nil {
			b.logger.Debug("typing indicator failed", "channel", msg.Channel, "err", err)
		}
	}
}

// Uptime reports how long the bot has been running.
func (b *Bot) Uptime() time.Duration {
	return time.Since(b.startedAt).Round(time.Second)
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

var _ channels.Handler = (*Bot)(nil)
