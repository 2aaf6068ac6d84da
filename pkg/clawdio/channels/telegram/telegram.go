// Package telegram implements the Telegram transport using the Bot API
// directly over HTTP: getUpdates long polling in, sendMessage out, with
// typing indicators via sendChatAction.
//
// Updates are acknowledged only after the whole batch has been handled. The
// getUpdates offset never moves past an update whose handler has not
// returned, so a crash mid-batch redelivers instead of losing messages.
// Within a batch, messages from the same sender are handled in arrival
// order; distinct senders are handled concurrently.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/channels"
)

const (
	// maxMessageLen is the Bot API limit for one sendMessage call.
	maxMessageLen = 4096

	// maxBatchConcurrency bounds how many senders of one batch are handled
	// at the same time.
	maxBatchConcurrency = 8

	// maxBackoff caps the poll retry delay.
	maxBackoff = 30 * time.Second
)

// Config holds the Telegram transport configuration.
type Config struct {
	// Token is the Bot API token from @BotFather.
	Token string `yaml:"token"`

	// PollTimeout is how long each getUpdates call holds open. Default 30s.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// BaseURL overrides the Bot API endpoint. Default
	// https://api.telegram.org.
	BaseURL string `yaml:"base_url"`
}

// Telegram implements channels.Channel and channels.PresenceChannel.
type Telegram struct {
	cfg     Config
	handler channels.Handler
	logger  *slog.Logger
	client  *http.Client

	// baseURL is <api>/bot<token>.
	baseURL string

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	// offset is the next update ID to request. Advanced only after a full
	// batch has been dispatched.
	offset int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the transport. Every accepted update is passed to handler;
// Connect must not be called before a handler is set.
func New(cfg Config, handler channels.Handler, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	return &Telegram{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "telegram"),
		// The client must outwait the long poll itself.
		client:  &http.Client{Timeout: cfg.PollTimeout + 30*time.Second},
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/bot" + cfg.Token,
		done:    make(chan struct{}),
	}
}

// ---------- Channel Interface ----------

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect verifies the token with getMe and starts the polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}
	if t.handler == nil {
		return fmt.Errorf("telegram: no message handler set")
	}
	if t.connected.Load() {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	me, err := t.getMe(t.ctx)
	if err != nil {
		return fmt.Errorf("telegram: verifying token: %w", err)
	}
	t.logger.Info("connected", "bot", me.Username, "id", me.ID)
	t.connected.Store(true)

	go t.pollLoop()
	return nil
}

// Disconnect stops the polling loop and waits for the in-flight batch.
func (t *Telegram) Disconnect() error {
	if !t.connected.Load() {
		return nil
	}
	t.cancel()
	<-t.done
	t.connected.Store(false)
	t.logger.Info("disconnected")
	return nil
}

// Send delivers text to a chat, splitting past the Bot API length limit.
// Only the first chunk is attached as a reply.
func (t *Telegram) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if !t.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", to, err)
	}

	for i, chunk := range channels.SplitMessage(message.Content, maxMessageLen) {
		payload := map[string]any{
			"chat_id": chatID,
			"text":    chunk,
		}
		if i == 0 && message.ReplyTo != "" {
			if msgID, e := strconv.ParseInt(message.ReplyTo, 10, 64); e == nil {
				payload["reply_parameters"] = map[string]any{"message_id": msgID}
			}
		}
		if _, err := t.apiCall(ctx, "sendMessage", payload); err != nil {
			return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
		}
	}
	return nil
}

// IsConnected reports whether the poll loop is running.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// Health returns the transport health snapshot.
func (t *Telegram) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := t.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     t.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(t.errorCount.Load()),
	}
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a "typing..." chat action. Indicator failures are never
// fatal.
func (t *Telegram) SendTyping(ctx context.Context, to string) error {
	if !t.connected.Load() {
		return nil
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return nil
	}
	_, err = t.apiCall(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

// ---------- Poll Loop ----------

// pollLoop fetches update batches until the context is cancelled. Failed
// polls back off exponentially from 1s to 30s; a successful poll resets
// the backoff.
func (t *Telegram) pollLoop() {
	defer close(t.done)
	t.logger.Info("polling started", "timeout", t.cfg.PollTimeout)
	backoff := time.Second

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("polling stopped")
			return
		default:
		}

		updates, err := t.getUpdates(t.ctx, t.offset)
		if err != nil {
			if t.ctx.Err() != nil {
				t.logger.Info("polling stopped")
				return
			}
			t.errorCount.Add(1)
			t.logger.Warn("getUpdates failed", "err", err, "backoff", backoff)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		t.errorCount.Store(0)

		if len(updates) == 0 {
			continue
		}

		t.dispatchBatch(updates)

		// The whole batch is handled; only now is it safe to ack.
		last := updates[len(updates)-1].UpdateID
		if last >= t.offset {
			t.offset = last + 1
		}
	}
}

// dispatchBatch hands a batch to the handler and returns when every update
// has been handled. Messages are grouped by sender: each sender's messages
// run in arrival order, different senders run concurrently up to a bound.
func (t *Telegram) dispatchBatch(updates []tgUpdate) {
	bySender := make(map[string][]*channels.IncomingMessage)
	var order []string

	for _, u := range updates {
		msg := t.toIncoming(u)
		if msg == nil {
			continue
		}
		if _, seen := bySender[msg.From]; !seen {
			order = append(order, msg.From)
		}
		bySender[msg.From] = append(bySender[msg.From], msg)
	}
	if len(order) == 0 {
		return
	}

	t.lastMsg.Store(time.Now())

	sem := make(chan struct{}, maxBatchConcurrency)
	var wg sync.WaitGroup
	for _, sender := range order {
		msgs := bySender[sender]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for _, msg := range msgs {
				t.handler.HandleMessage(t.ctx, msg)
			}
		}()
	}
	wg.Wait()
}

// toIncoming converts an update into an IncomingMessage, or nil for update
// kinds the bot does not handle. Edits are treated as new messages.
func (t *Telegram) toIncoming(u tgUpdate) *channels.IncomingMessage {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.From == nil {
		return nil
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	fromName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if fromName == "" {
		fromName = msg.From.Username
	}

	return &channels.IncomingMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Channel:   "telegram",
		From:      strconv.FormatInt(msg.From.ID, 10),
		FromName:  fromName,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Content:   content,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
}

// ---------- Bot API Types ----------

type tgUpdate struct {
	UpdateID      int64      `json:"update_id"`
	Message       *tgMessage `json:"message"`
	EditedMessage *tgMessage `json:"edited_message"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Date      int     `json:"date"`
	Text      string  `json:"text"`
	Caption   string  `json:"caption"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgBotUser struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// ---------- API Helpers ----------

// apiCall POSTs to the Bot API and unwraps the result envelope.
func (t *Telegram) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

// getMe verifies the token and returns the bot identity.
func (t *Telegram) getMe(ctx context.Context) (*tgBotUser, error) {
	data, err := t.apiCall(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var user tgBotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

// getUpdates long-polls for the next batch.
func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	data, err := t.apiCall(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"limit":           100,
		"timeout":         int(t.cfg.PollTimeout.Seconds()),
		"allowed_updates": []string{"message", "edited_message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

var (
	_ channels.Channel         = (*Telegram)(nil)
	_ channels.PresenceChannel = (*Telegram)(nil)
)
