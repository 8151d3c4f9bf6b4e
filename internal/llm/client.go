package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"asklegal/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultChatTimeout     = 60 * time.Second
	DefaultResearchTimeout = 15 * time.Second
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type ChatRequest struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	Tools       []Tool
	// ToolChoice forces a call to the named tool when set.
	ToolChoice string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatResponse struct {
	Content          string
	ToolCalls        []ToolCall
	Model            string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

// ToolArguments returns the parsed arguments of the first call to name. ok is
// false when there is no such call or its arguments are not valid JSON.
func (r *ChatResponse) ToolArguments(name string) (gjson.Result, bool) {
	for _, tc := range r.ToolCalls {
		if tc.Name != name {
			continue
		}
		if !gjson.Valid(tc.Arguments) {
			return gjson.Result{}, false
		}
		return gjson.Parse(tc.Arguments), true
	}
	return gjson.Result{}, false
}

// Completer is what services need from a model endpoint.
type Completer interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var _ Completer = (*Client)(nil)

// Client talks to one OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a client for ep. A nil transport uses DefaultTransport.
func NewClient(ep config.LLMEndpoint, defaultTimeout time.Duration, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = DefaultTransport()
	}
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(ep.BaseURL, "/"),
		apiKey:     ep.APIKey,
		model:      ep.Model,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.model != ""
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDecodedSize+1))
	if err != nil {
		return nil, err
	}
	data, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = truncate(string(data), 200)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	out, err := parseResponse(data)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"model":            out.Model,
		"duration":         time.Since(start).Round(time.Millisecond),
		"promptTokens":     out.PromptTokens,
		"completionTokens": out.CompletionTokens,
		"toolCalls":        len(out.ToolCalls),
	}).Debug("llm: chat completed")
	return out, nil
}

func (c *Client) buildBody(req ChatRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", c.model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "messages", req.Messages); err != nil {
		return nil, err
	}
	if req.Temperature != nil {
		if body, err = sjson.SetBytes(body, "temperature", *req.Temperature); err != nil {
			return nil, err
		}
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", req.MaxTokens); err != nil {
			return nil, err
		}
	}
	for i, tool := range req.Tools {
		prefix := fmt.Sprintf("tools.%d", i)
		if body, err = sjson.SetBytes(body, prefix+".type", "function"); err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, prefix+".function.name", tool.Name); err != nil {
			return nil, err
		}
		if tool.Description != "" {
			if body, err = sjson.SetBytes(body, prefix+".function.description", tool.Description); err != nil {
				return nil, err
			}
		}
		params := tool.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		if body, err = sjson.SetRawBytes(body, prefix+".function.parameters", params); err != nil {
			return nil, err
		}
	}
	if req.ToolChoice != "" {
		if body, err = sjson.SetBytes(body, "tool_choice.type", "function"); err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, "tool_choice.function.name", req.ToolChoice); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func parseResponse(data []byte) (*ChatResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrProtocol)
	}
	root := gjson.ParseBytes(data)
	choice := root.Get("choices.0")
	if !choice.Exists() {
		return nil, fmt.Errorf("%w: no choices", ErrProtocol)
	}

	out := &ChatResponse{
		Content:          strings.TrimSpace(choice.Get("message.content").String()),
		Model:            root.Get("model").String(),
		FinishReason:     choice.Get("finish_reason").String(),
		PromptTokens:     root.Get("usage.prompt_tokens").Int(),
		CompletionTokens: root.Get("usage.completion_tokens").Int(),
	}
	choice.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
		return true
	})

	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, ErrEmptyReply
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
