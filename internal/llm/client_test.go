package llm

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"asklegal/internal/config"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
)

const completionJSON = `{"model":"test-model","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"  Which county is the case in?  "}}],"usage":{"prompt_tokens":12,"completion_tokens":7}}`

func noRetry() *RetryTransport {
	return NewRetryTransport(http.DefaultTransport, &RetryConfig{Enabled: false})
}

func newTestClient(url string, timeout time.Duration, rt http.RoundTripper) *Client {
	return NewClient(config.LLMEndpoint{BaseURL: url, APIKey: "sk-test", Model: "test-model", Timeout: timeout}, DefaultChatTimeout, rt)
}

func TestClientChat_ParsesContentAndSendsRequest(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	temp := 0.2
	c := newTestClient(srv.URL, time.Second, noRetry())
	resp, err := c.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		Temperature: &temp,
		Tools:       []Tool{{Name: "suggest", Parameters: []byte(`{"type":"object"}`)}},
		ToolChoice:  "suggest",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Which county is the case in?" {
		t.Fatalf("content: %q", resp.Content)
	}
	if resp.PromptTokens != 12 || resp.CompletionTokens != 7 {
		t.Fatalf("usage: %+v", resp)
	}

	body := gjson.ParseBytes(gotBody)
	if body.Get("model").String() != "test-model" {
		t.Errorf("model not sent: %s", gotBody)
	}
	if body.Get("messages.1.content").String() != "hi" {
		t.Errorf("messages not sent: %s", gotBody)
	}
	if body.Get("tools.0.function.name").String() != "suggest" || body.Get("tool_choice.function.name").String() != "suggest" {
		t.Errorf("tools not sent: %s", gotBody)
	}
	if body.Get("temperature").Float() != 0.2 {
		t.Errorf("temperature not sent: %s", gotBody)
	}
}

func TestClientChat_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"tool_calls":[
			{"id":"1","function":{"name":"suggest","arguments":"{\"suggestions\":[\"a\",\"b\"]}"}},
			{"id":"2","function":{"name":"broken","arguments":"{not json"}}
		]}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL, time.Second, noRetry()).Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args, ok := resp.ToolArguments("suggest")
	if !ok || len(args.Get("suggestions").Array()) != 2 {
		t.Fatalf("expected two suggestions, got %v %v", args, ok)
	}
	if _, ok := resp.ToolArguments("broken"); ok {
		t.Fatal("invalid arguments must not parse")
	}
	if _, ok := resp.ToolArguments("missing"); ok {
		t.Fatal("missing tool must not parse")
	}
}

func TestClientChat_DecodesCompressedReplies(t *testing.T) {
	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"zstd": func(b []byte) []byte {
			enc, _ := zstd.NewWriter(nil)
			defer enc.Close()
			return enc.EncodeAll(b, nil)
		},
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			payload := encode([]byte(completionJSON))
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", name)
				_, _ = w.Write(payload)
			}))
			defer srv.Close()

			resp, err := newTestClient(srv.URL, time.Second, noRetry()).Chat(context.Background(), ChatRequest{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != "Which county is the case in?" {
				t.Fatalf("content: %q", resp.Content)
			}
		})
	}
}

func TestClientChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second, noRetry()).Chat(context.Background(), ChatRequest{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 429 || statusErr.Message != "slow down" {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if ClassifyError(err) != ErrorClassRateLimited {
		t.Fatalf("class: %s", ClassifyError(err))
	}
	if UserMessage(err) != busyMessage {
		t.Fatalf("user message: %q", UserMessage(err))
	}
}

func TestClientChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 30*time.Millisecond, noRetry()).Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if ClassifyError(err) != ErrorClassTimeout {
		t.Fatalf("expected timeout class, got %s (%v)", ClassifyError(err), err)
	}
	if UserMessage(err) != timeoutMessage {
		t.Fatalf("user message: %q", UserMessage(err))
	}
}

func TestClientChat_EmptyReplyAndNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, time.Second, noRetry()).Chat(context.Background(), ChatRequest{}); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}

	c := NewClient(config.LLMEndpoint{}, DefaultChatTimeout, noRetry())
	if _, err := c.Chat(context.Background(), ChatRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if UserMessage(ErrNotConfigured) != genericMessage {
		t.Fatal("unexpected message for unconfigured client")
	}
}

func TestRetryTransport_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte(`"model"`)) {
			t.Errorf("request body was not replayed: %q", body)
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, &RetryConfig{
		Enabled:      true,
		MaxAttempts:  3,
		MaxBodyBytes: 1 << 20,
		BackoffBase:  time.Millisecond,
		BackoffMax:   5 * time.Millisecond,
		RetryOn5xx:   true,
	})
	resp, err := newTestClient(srv.URL, time.Second, rt).Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content == "" || atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected success on third attempt, hits=%d", hits)
	}
}

func TestRetryTransport_DisabledDoesNotRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, DefaultRetryConfig())
	cfg := *rt.Config()
	cfg.Enabled = false
	rt.UpdateConfig(&cfg)

	_, err := newTestClient(srv.URL, time.Second, rt).Chat(context.Background(), ChatRequest{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 StatusError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single attempt, got %d", hits)
	}
}

func TestRetryConfigModelRoundTrip(t *testing.T) {
	cfg := DefaultRetryConfig()
	back := RetryConfigFromModel(cfg.Model())
	if *back != *cfg {
		t.Fatalf("config changed through model conversion: %+v vs %+v", back, cfg)
	}
}
