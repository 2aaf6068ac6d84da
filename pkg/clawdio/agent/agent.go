// Package agent implements the backends that do the actual work: the Claude
// Code CLI invoked as a subprocess and an Ollama server reached over HTTP.
// Both are exposed behind the same Agent interface so the bot never branches
// on backend type, only on which agent a session has selected.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Agent is the uniform invocation contract over the backends.
type Agent interface {
	// Name returns the backend identifier (e.g. "claude", "ollama").
	Name() string

	// Invoke runs a single exchange. A nil error means Response.Text holds
	// the backend's reply; a non-nil error is (or wraps) an *Error whose
	// Kind tells the caller how to report it.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Healthcheck reports whether the backend is currently reachable.
	Healthcheck(ctx context.Context) error
}

// ModelLister is implemented by agents that expose a selectable model list.
type ModelLister interface {
	Agent

	// ListModels returns the model names currently available on the backend.
	ListModels(ctx context.Context) ([]string, error)
}

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation turn passed as context to stateless backends.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Request carries everything an agent needs for one exchange. Passed by
// value; agents must not retain references to it.
type Request struct {
	// Prompt is the user's message.
	Prompt string

	// History is the prior conversation, oldest first. Ignored by backends
	// that keep their own memory (Claude).
	History []Turn

	// WorkingDir is the directory context for subprocess-backed agents.
	WorkingDir string

	// Model overrides the backend's default model, where supported.
	Model string

	// ContinuationID resumes a prior backend-side conversation, where
	// supported. Opaque to the caller.
	ContinuationID string
}

// Response is the result of a successful exchange.
type Response struct {
	// Text is the backend's reply.
	Text string

	// ContinuationID, when set, should be stored and passed back on the
	// next Request to continue the backend-side conversation.
	ContinuationID string
}

// Kind classifies an agent failure. The bot maps each kind to a fixed
// user-facing message; Detail carries the backend's own words.
type Kind string

const (
	// KindFatalConfig means the backend is not installed or misconfigured
	// (executable missing, endpoint not set). The process keeps serving.
	KindFatalConfig Kind = "fatal_config"

	// KindAgentError means the backend ran but reported failure (non-zero
	// exit, non-2xx status, malformed output).
	KindAgentError Kind = "agent_error"

	// KindUnavailable means the backend could not be reached at all.
	KindUnavailable Kind = "unavailable"

	// KindTimeout means the backend exceeded its allotted wall-clock time
	// and was cancelled (subprocesses are force-killed).
	KindTimeout Kind = "timeout"
)

// Error is the typed failure returned by agent invocations.
type Error struct {
	// Agent is the backend name, for logs.
	Agent string

	// Kind classifies the failure.
	Kind Kind

	// Detail is the backend's error text (stderr excerpt, HTTP status...).
	Detail string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Agent, e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Agent, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Agent, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. Unclassified errors report
// KindAgentError so callers always have something to show the user.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindAgentError
}

// UserMessage translates an invocation error into the text shown to the
// chat user. Backend internals stay in the logs; the user gets a short,
// actionable line.
func UserMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return fmt.Sprintf("Sorry, an error occurred: %v", err)
	}

	switch ae.Kind {
	case KindFatalConfig:
		return fmt.Sprintf("The %s backend is not available. Check that it is installed and configured.", ae.Agent)
	case KindUnavailable:
		return fmt.Sprintf("Cannot reach the %s backend. Is it running?", ae.Agent)
	case KindTimeout:
		return fmt.Sprintf("The %s backend timed out. Nothing was recorded; try again or simplify the request.", ae.Agent)
	default:
		if ae.Detail != "" {
			return fmt.Sprintf("The %s backend returned an error:\n%s", ae.Agent, ae.Detail)
		}
		return fmt.Sprintf("The %s backend returned an error.", ae.Agent)
	}
}
