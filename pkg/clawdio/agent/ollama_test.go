package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOllama(t *testing.T, handler http.Handler) (*Ollama, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "test-model", Timeout: 5 * time.Second}, nil)
	return o, srv
}

func TestOllamaInvoke(t *testing.T) {
	var got chatRequest
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "  hi there  "},
		})
	}))

	resp, err := o.Invoke(context.Background(), Request{
		Prompt: "hello",
		History: []Turn{
			{Role: RoleUser, Text: "earlier question"},
			{Role: RoleAssistant, Text: "earlier answer"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi there")
	}

	t.Run("history precedes prompt oldest first", func(t *testing.T) {
		if len(got.Messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(got.Messages))
		}
		if got.Messages[0].Text != "earlier question" || got.Messages[2].Text != "hello" {
			t.Errorf("message order wrong: %+v", got.Messages)
		}
	})

	t.Run("uses default model when unset", func(t *testing.T) {
		if got.Model != "test-model" {
			t.Errorf("model = %q, want test-model", got.Model)
		}
	})

	t.Run("stream disabled", func(t *testing.T) {
		if got.Stream {
			t.Error("stream should be false")
		}
	})
}

func TestOllamaInvokeModelOverride(t *testing.T) {
	var got chatRequest
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "ok"},
		})
	}))

	if _, err := o.Invoke(context.Background(), Request{Prompt: "x", Model: "mistral"}); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if got.Model != "mistral" {
		t.Errorf("model = %q, want mistral", got.Model)
	}
}

func TestOllamaInvokeErrorStatus(t *testing.T) {
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))

	_, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindAgentError {
		t.Errorf("kind = %q, want %q", KindOf(err), KindAgentError)
	}
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatal("expected *Error")
	}
	if ae.Detail == "" {
		t.Error("expected upstream status in Detail")
	}
}

func TestOllamaInvokeUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listening anymore

	o := NewOllama(OllamaConfig{BaseURL: url, Timeout: 2 * time.Second}, nil)
	_, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindUnavailable {
		t.Errorf("kind = %q, want %q", KindOf(err), KindUnavailable)
	}
}

func TestOllamaInvokeEmptyCompletion(t *testing.T) {
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "   "},
		})
	}))

	_, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if KindOf(err) != KindAgentError {
		t.Errorf("kind = %q, want %q", KindOf(err), KindAgentError)
	}
}

func TestOllamaInvokeAPIError(t *testing.T) {
	// Ollama reports some failures as 200 with an "error" field.
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "out of memory"})
	}))

	_, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Detail != "out of memory" {
		t.Errorf("expected API error detail, got %v", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.2"}, {"name": "mistral"}},
		})
	}))

	names, err := o.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	if len(names) != 2 || names[0] != "llama3.2" || names[1] != "mistral" {
		t.Errorf("names = %v", names)
	}
}

func TestOllamaHealthcheck(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Ollama is running"))
		}))
		if err := o.Healthcheck(context.Background()); err != nil {
			t.Errorf("Healthcheck() error: %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		o := NewOllama(OllamaConfig{BaseURL: url}, nil)
		if err := o.Healthcheck(context.Background()); err == nil {
			t.Error("expected error for closed server")
		}
	})
}

// resetConn drains the request, then hijacks the connection and closes it
// with SO_LINGER zero so the client sees a connection reset, not a clean EOF.
func resetConn(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	io.Copy(io.Discard, r.Body)

	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		t.Fatalf("hijacking connection: %v", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetLinger(0)
	}
	conn.Close()
}

func TestOllamaInvokeRetriesOnConnectionReset(t *testing.T) {
	var calls int
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			resetConn(t, w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "second time lucky"},
		})
	}))

	resp, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.Text != "second time lucky" {
		t.Errorf("Text = %q", resp.Text)
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func TestOllamaInvokeResetTwiceReportsUnavailable(t *testing.T) {
	var calls int
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resetConn(t, w, r)
	}))

	_, err := o.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindUnavailable {
		t.Errorf("kind = %q, want %q", KindOf(err), KindUnavailable)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 requests, got %d", calls)
	}
}

func TestOllamaInvokeNoPartialRetryOnErrorStatus(t *testing.T) {
	// Error statuses must not be retried: count the requests.
	var calls int
	o, _ := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	o.Invoke(context.Background(), Request{Prompt: "x"})
	if calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls)
	}
}
