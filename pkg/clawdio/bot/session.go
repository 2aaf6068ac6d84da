// session.go implements per-user session state. Each authorized sender gets
// one session holding the active backend mode, model and directory overrides,
// and two bounded conversation histories. Everything is in memory and resets
// on restart.
package bot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/agent"
)

// Mode selects which backend handles a session's free-text messages.
type Mode string

const (
	ModeClaude Mode = "claude"
	ModeOllama Mode = "ollama"
)

// DefaultMaxExchanges bounds each history to this many prompt/reply pairs.
const DefaultMaxExchanges = 10

// Exchange is one completed prompt/reply pair.
type Exchange struct {
	Prompt    string
	Reply     string
	Timestamp time.Time
}

// Session holds the conversational state for one sender. All methods are
// safe for concurrent use, though the dispatcher serializes message handling
// per sender.
type Session struct {
	// ID is the sender identifier the session is keyed on.
	ID string

	// Channel identifies the transport the session was created from.
	Channel string

	maxExchanges int

	mode           Mode
	model          string
	workingDir     string
	continuationID string

	claudeHistory []Exchange
	ollamaHistory []Exchange

	CreatedAt    time.Time
	LastActiveAt time.Time

	// dispatchMu serializes message handling for this sender. Held for the
	// full duration of an exchange, including the agent call.
	dispatchMu sync.Mutex

	mu sync.RWMutex
}

// Lock acquires the session's dispatch lock. Transports that push events
// concurrently use it to keep one exchange in flight per sender.
func (s *Session) Lock() { s.dispatchMu.Lock() }

// Unlock releases the dispatch lock.
func (s *Session) Unlock() { s.dispatchMu.Unlock() }

// Mode returns the session's active backend mode.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the active backend mode.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Model returns the session's Ollama model override, or "" for the default.
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel sets the Ollama model override.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// WorkingDir returns the session's working directory override.
func (s *Session) WorkingDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// SetWorkingDir sets the working directory for Claude invocations.
func (s *Session) SetWorkingDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDir = dir
}

// ContinuationID returns the opaque marker that resumes the backend-side
// Claude conversation, or "" when the next exchange starts fresh.
func (s *Session) ContinuationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.continuationID
}

// RecordClaude appends a completed Claude exchange and stores the
// continuation marker. Called only on success; failed exchanges leave the
// session untouched.
func (s *Session) RecordClaude(prompt, reply, continuationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claudeHistory = appendBounded(s.claudeHistory, Exchange{
		Prompt: prompt, Reply: reply, Timestamp: time.Now(),
	}, s.maxExchanges)
	if continuationID != "" {
		s.continuationID = continuationID
	}
	s.LastActiveAt = time.Now()
}

// RecordOllama appends a completed Ollama exchange. Called only on success.
func (s *Session) RecordOllama(prompt, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ollamaHistory = appendBounded(s.ollamaHistory, Exchange{
		Prompt: prompt, Reply: reply, Timestamp: time.Now(),
	}, s.maxExchanges)
	s.LastActiveAt = time.Now()
}

// OllamaTurns returns the Ollama history flattened into agent turns, oldest
// first, ready to ride along on a stateless request.
func (s *Session) OllamaTurns() []agent.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]agent.Turn, 0, len(s.ollamaHistory)*2)
	for _, ex := range s.ollamaHistory {
		turns = append(turns,
			agent.Turn{Role: agent.RoleUser, Text: ex.Prompt},
			agent.Turn{Role: agent.RoleAssistant, Text: ex.Reply},
		)
	}
	return turns
}

// ClaudeExchanges returns the number of recorded Claude exchanges.
func (s *Session) ClaudeExchanges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.claudeHistory)
}

// OllamaExchanges returns the number of recorded Ollama exchanges.
func (s *Session) OllamaExchanges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ollamaHistory)
}

// ClearClaude drops the Claude history and continuation marker, so the next
// exchange starts a fresh backend conversation. Idempotent.
func (s *Session) ClearClaude() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claudeHistory = nil
	s.continuationID = ""
}

// ClearOllama drops the Ollama history. Idempotent.
func (s *Session) ClearOllama() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ollamaHistory = nil
}

// appendBounded appends and evicts oldest-first past the max.
func appendBounded(history []Exchange, ex Exchange, max int) []Exchange {
	history = append(history, ex)
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// SessionStore manages sessions keyed by sender ID. Sessions are created
// lazily, only for senders that pass the access check.
type SessionStore struct {
	defaultMode       Mode
	defaultWorkingDir string
	maxExchanges      int

	sessions map[string]*Session
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewSessionStore creates a session store. maxExchanges <= 0 uses the
// default bound.
func NewSessionStore(defaultMode Mode, defaultWorkingDir string, maxExchanges int, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMode == "" {
		defaultMode = ModeClaude
	}
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &SessionStore{
		defaultMode:       defaultMode,
		defaultWorkingDir: defaultWorkingDir,
		maxExchanges:      maxExchanges,
		sessions:          make(map[string]*Session),
		logger:            logger.With("component", "sessions"),
	}
}

// GetOrCreate returns the sender's session, creating it on first contact.
func (ss *SessionStore) GetOrCreate(channel, senderID string) *Session {
	ss.mu.RLock()
	if s, ok := ss.sessions[senderID]; ok {
		ss.mu.RUnlock()
		return s
	}
	ss.mu.RUnlock()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	// Double-check after acquiring the write lock.
	if s, ok := ss.sessions[senderID]; ok {
		return s
	}

	s := &Session{
		ID:           senderID,
		Channel:      channel,
		maxExchanges: ss.maxExchanges,
		mode:         ss.defaultMode,
		workingDir:   ss.defaultWorkingDir,
		CreatedAt:    time.Now(),
		LastActiveAt: time.Now(),
	}
	ss.sessions[senderID] = s
	ss.logger.Info("session created", "channel", channel, "sender", senderID)
	return s
}

// Get returns the sender's session, or nil if none exists.
func (ss *SessionStore) Get(senderID string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.sessions[senderID]
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}
