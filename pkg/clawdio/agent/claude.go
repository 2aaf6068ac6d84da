// claude.go implements the subprocess-backed agent: one `claude -p` run per
// exchange. The CLI keeps its own conversational memory out of band, so no
// history is passed in; a continuation flag resumes the previous session.
package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ClaudeConfig holds configuration for the Claude Code agent.
type ClaudeConfig struct {
	// Binary is the CLI executable name or path. Default "claude".
	Binary string `yaml:"binary"`

	// WorkingDir is the default directory the CLI runs in when the
	// session has none. Default: the user's home directory.
	WorkingDir string `yaml:"working_dir"`

	// Timeout is the wall-clock limit for one invocation. The process
	// tree is killed when it elapses. Default 5 minutes.
	Timeout time.Duration `yaml:"timeout"`

	// SkipPermissions passes --dangerously-skip-permissions so the CLI
	// never blocks on interactive permission prompts.
	SkipPermissions bool `yaml:"skip_permissions"`

	// APIKey is injected as ANTHROPIC_API_KEY if set. Optional; the CLI
	// can use its own stored credentials.
	APIKey string `yaml:"api_key"`
}

// DefaultClaudeConfig returns a ClaudeConfig with sensible defaults.
func DefaultClaudeConfig() ClaudeConfig {
	home, _ := os.UserHomeDir()
	return ClaudeConfig{
		Binary:          "claude",
		WorkingDir:      home,
		Timeout:         5 * time.Minute,
		SkipPermissions: true,
	}
}

// Claude invokes the Claude Code CLI as a one-shot subprocess per exchange.
type Claude struct {
	cfg    ClaudeConfig
	logger *slog.Logger
}

// NewClaude creates a Claude agent from config.
func NewClaude(cfg ClaudeConfig, logger *slog.Logger) *Claude {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Claude{cfg: cfg, logger: logger.With("component", "claude")}
}

// Name returns "claude".
func (c *Claude) Name() string { return "claude" }

// Invoke runs one CLI exchange. Timeouts kill the whole process group; a
// timed-out or failed run returns an error and no partial response.
func (c *Claude) Invoke(ctx context.Context, req Request) (*Response, error) {
	args := []string{"-p", req.Prompt, "--output-format", "text"}
	if c.cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if req.ContinuationID != "" {
		args = append(args, "--continue")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.cfg.Binary, args...)
	cmd.Dir = c.workingDir(req)
	cmd.Env = c.buildEnv()

	// Kill the whole process tree on timeout, not just the direct child.
	// The CLI spawns tool subprocesses of its own.
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Info("invoking claude",
		"dir", cmd.Dir,
		"continue", req.ContinuationID != "",
		"timeout", c.cfg.Timeout,
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if stderr.Len() > 0 {
		c.logger.Warn("claude stderr", "stderr", truncate(stderr.String(), 500))
	}

	if err != nil {
		return nil, c.classify(runCtx, err, stderr.String(), duration)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, &Error{Agent: "claude", Kind: KindAgentError, Detail: "no output from claude"}
	}

	c.logger.Info("claude done", "duration_ms", duration.Milliseconds(), "output_bytes", len(text))

	// The CLI resumes via --continue; any non-empty marker keeps the
	// session continuing on the next exchange.
	return &Response{Text: text, ContinuationID: "continue"}, nil
}

// Healthcheck runs `claude --version` with a short timeout.
func (c *Claude) Healthcheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, c.cfg.Binary, "--version")
	out, err := cmd.Output()
	if err != nil {
		return c.classify(checkCtx, err, "", 0)
	}
	c.logger.Debug("claude healthcheck ok", "version", strings.TrimSpace(string(out)))
	return nil
}

// Version returns the CLI version string, for the /status reply.
func (c *Claude) Version(ctx context.Context) (string, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(checkCtx, c.cfg.Binary, "--version").Output()
	if err != nil {
		return "", c.classify(checkCtx, err, "", 0)
	}
	return strings.TrimSpace(string(out)), nil
}

// WorkingDir returns the effective default working directory.
func (c *Claude) WorkingDir() string { return c.cfg.WorkingDir }

// classify maps a subprocess failure to a typed agent error.
func (c *Claude) classify(ctx context.Context, err error, stderr string, duration time.Duration) error {
	// Timeout: the context expired and the process group was killed.
	if ctx.Err() == context.DeadlineExceeded {
		c.logger.Warn("claude timed out", "after", duration)
		return &Error{Agent: "claude", Kind: KindTimeout, Err: ctx.Err()}
	}

	// Binary missing or not executable.
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return &Error{
			Agent: "claude", Kind: KindFatalConfig,
			Detail: "claude CLI not found in PATH",
			Err:    err,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = exitErr.String()
		}
		return &Error{
			Agent: "claude", Kind: KindAgentError,
			Detail: truncate(detail, 1000),
			Err:    err,
		}
	}

	return &Error{Agent: "claude", Kind: KindAgentError, Err: err}
}

// workingDir picks the request's directory over the configured default.
func (c *Claude) workingDir(req Request) string {
	if req.WorkingDir != "" {
		return req.WorkingDir
	}
	return c.cfg.WorkingDir
}

// buildEnv returns the subprocess environment.
func (c *Claude) buildEnv() []string {
	env := os.Environ()
	if c.cfg.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+c.cfg.APIKey)
	}
	return env
}

// truncate limits s to max bytes for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Agent = (*Claude)(nil)
