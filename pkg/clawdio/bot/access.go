// access.go implements the allow-list guard. The bot answers only senders
// whose IDs appear in the configured list; everyone else gets a fixed denial
// notice that includes their own ID, so the operator can add it.
package bot

import (
	"fmt"
	"log/slog"
	"strings"
)

// AccessConfig holds the allow-list configuration.
type AccessConfig struct {
	// AllowedUsers is the list of sender IDs the bot responds to. An empty
	// list means nobody is authorized.
	AllowedUsers []string `yaml:"allowed_users"`
}

// AccessGuard evaluates incoming senders against an immutable allow-set.
// The set is fixed at construction; changing it requires a restart.
type AccessGuard struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewAccessGuard builds the guard from config. IDs are trimmed; blanks are
// dropped.
func NewAccessGuard(cfg AccessConfig, logger *slog.Logger) *AccessGuard {
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		id = strings.TrimSpace(id)
		if id != "" {
			allowed[id] = struct{}{}
		}
	}

	g := &AccessGuard{allowed: allowed, logger: logger.With("component", "access")}
	if len(allowed) == 0 {
		g.logger.Warn("allow-list is empty, all senders will be denied")
	} else {
		g.logger.Info("access guard initialized", "allowed_users", len(allowed))
	}
	return g
}

// Allowed reports whether the sender may interact with the bot.
func (g *AccessGuard) Allowed(senderID string) bool {
	_, ok := g.allowed[strings.TrimSpace(senderID)]
	return ok
}

// DenialNotice returns the reply sent to unauthorized senders. It carries
// the sender's own ID so they can ask the operator to allow it.
func (g *AccessGuard) DenialNotice(senderID string) string {
	return fmt.Sprintf("Sorry, you are not authorized to use this bot. Your ID: %s", senderID)
}

// Count returns the size of the allow-set, for the /status reply.
func (g *AccessGuard) Count() int { return len(g.allowed) }
