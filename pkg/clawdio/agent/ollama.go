// ollama.go implements the HTTP-backed agent. Ollama is stateless per call:
// the session's trimmed history rides along in every request. Uses the native
// Ollama API (/api/chat, /api/tags).
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// OllamaConfig holds configuration for the Ollama agent.
type OllamaConfig struct {
	// BaseURL is the Ollama server address. Default http://localhost:11434.
	BaseURL string `yaml:"base_url"`

	// Model is the default model. Sessions may override it per user.
	Model string `yaml:"model"`

	// Timeout is the per-request limit for /api/chat. Default 2 minutes.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultOllamaConfig returns an OllamaConfig with sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "llama3.2",
		Timeout: 2 * time.Minute,
	}
}

// Ollama talks to a local Ollama server over HTTP.
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates an Ollama agent from config.
func NewOllama(cfg OllamaConfig, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Ollama{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "ollama"),
	}
}

// ---------- Wire Types ----------

type chatRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ---------- Agent Interface ----------

// Name returns "ollama".
func (o *Ollama) Name() string { return "ollama" }

// Invoke sends the history plus prompt to /api/chat and returns the
// completion. Retries once, after a short fixed delay, on a transient
// network failure (connection reset); never on error statuses or timeouts.
func (o *Ollama) Invoke(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}

	messages := make([]Turn, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, Turn{Role: RoleUser, Text: req.Prompt})

	body := chatRequest{Model: model, Messages: messages, Stream: false}

	o.logger.Info("invoking ollama", "model", model, "messages", len(messages))

	start := time.Now()
	respBody, err := o.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: "malformed response", Err: err}
	}
	if chatResp.Error != "" {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: chatResp.Error}
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: "empty completion"}
	}

	o.logger.Info("ollama done",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", len(text),
	)
	return &Response{Text: text}, nil
}

// Healthcheck probes the server root with a short timeout.
func (o *Ollama) Healthcheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, o.cfg.BaseURL+"/", nil)
	if err != nil {
		return &Error{Agent: "ollama", Kind: KindFatalConfig, Detail: "invalid base URL", Err: err}
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return o.classifyNetErr(checkCtx, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &Error{Agent: "ollama", Kind: KindAgentError, Detail: resp.Status}
	}
	return nil
}

// ListModels returns the names from /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, o.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &Error{Agent: "ollama", Kind: KindFatalConfig, Detail: "invalid base URL", Err: err}
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, o.classifyNetErr(checkCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: resp.Status}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: "malformed /api/tags response", Err: err}
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// DefaultModel returns the configured default model name.
func (o *Ollama) DefaultModel() string { return o.cfg.Model }

// ---------- Internal ----------

// retryDelay before the single transient-failure retry.
const retryDelay = 500 * time.Millisecond

// post sends a JSON request, retrying once on connection reset.
func (o *Ollama) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal %s: %w", path, err)
	}

	respBody, err := o.doPost(ctx, path, body)
	if err == nil {
		return respBody, nil
	}

	// A reset mid-flight is usually the server restarting a worker; one
	// retry is cheap. Refused connections and timeouts are not retried.
	if errors.Is(err, syscall.ECONNRESET) {
		o.logger.Warn("ollama connection reset, retrying once", "path", path)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, o.classifyNetErr(ctx, ctx.Err())
		}
		respBody, err = o.doPost(ctx, path, body)
		if errors.Is(err, syscall.ECONNRESET) {
			return nil, o.classifyNetErr(ctx, err)
		}
		return respBody, err
	}

	return nil, err
}

// doPost performs one HTTP round trip and classifies failures.
func (o *Ollama) doPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Agent: "ollama", Kind: KindFatalConfig, Detail: "invalid base URL", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNRESET) {
			return nil, err // retried by post
		}
		return nil, o.classifyNetErr(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 500))
		return nil, &Error{Agent: "ollama", Kind: KindAgentError, Detail: detail}
	}

	return respBody, nil
}

// classifyNetErr maps transport-level failures to typed agent errors.
func (o *Ollama) classifyNetErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Agent: "ollama", Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{
			Agent: "ollama", Kind: KindUnavailable,
			Detail: fmt.Sprintf("cannot connect to %s", o.cfg.BaseURL),
			Err:    err,
		}
	}
	return &Error{Agent: "ollama", Kind: KindUnavailable, Err: err}
}

var (
	_ Agent       = (*Ollama)(nil)
	_ ModelLister = (*Ollama)(nil)
)
