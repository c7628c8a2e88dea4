// Package llm is the stateless client for the remote chat-completion
// endpoint, with a closed taxonomy of failure kinds.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"anonchat/internal/config"
	"anonchat/internal/models"

	"golang.org/x/net/proxy"
)

const (
	minTokens = 64
	maxTokens = 4096

	temperature = 0.9
	topP        = 0.95
)

// Client issues chat-completion requests. It performs no retries; the
// caller decides how to react to each failure kind.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	maxTokens    int
	systemPrompt string
	timeout      time.Duration

	// proxyErr is set when the configured proxy cannot be used; every
	// request then fails with it instead of crashing at startup.
	proxyErr *APIError
}

// NewClient builds a client from the llm config section.
func NewClient(cfg config.LLMConfig) *Client {
	tokens := cfg.MaxTokens
	if tokens < minTokens {
		tokens = minTokens
	}
	if tokens > maxTokens {
		tokens = maxTokens
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxTokens:    tokens,
		systemPrompt: cfg.SystemPrompt,
		timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	transport, err := buildTransport(strings.TrimSpace(cfg.ProxyURL))
	if err != nil {
		c.proxyErr = &APIError{Kind: KindProxyUnsupported, Err: err}
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	c.httpClient = &http.Client{Transport: transport}
	return c
}

func buildTransport(proxyURL string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return transport, nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks dialer: %w", err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer lacks context support")
		}
		transport.Proxy = nil
		transport.DialContext = ctxDialer.DialContext
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []models.Turn `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateReply sends the system prompt plus the (already capped)
// history and returns the reply text. Any failure is an *APIError.
func (c *Client) GenerateReply(ctx context.Context, history []models.Turn) (string, error) {
	if c.proxyErr != nil {
		return "", c.proxyErr
	}

	messages := make([]models.Turn, 0, len(history)+1)
	if c.systemPrompt != "" {
		messages = append(messages, models.Turn{Role: models.RoleSystem, Content: c.systemPrompt})
	}
	messages = append(messages, history...)

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", &APIError{Kind: KindUnknown, Err: err}
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &APIError{Kind: KindUnknown, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &APIError{Kind: KindMalformed, Body: string(body), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &APIError{Kind: KindMalformed, Body: string(body)}
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", &APIError{Kind: KindEmpty}
	}
	return text, nil
}

func classifyTransport(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: KindTimeout, Err: err}
	}
	return &APIError{Kind: KindNetwork, Err: err}
}

// classifyStatus applies the taxonomy in precedence order against the
// status code and lowercased body heuristics.
func classifyStatus(status int, body string) *APIError {
	normalized := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized,
		strings.Contains(normalized, "invalid api key"),
		strings.Contains(normalized, "unauthorized"):
		return &APIError{Kind: KindAuth, Status: status, Body: body}
	case status == http.StatusNotFound,
		strings.Contains(normalized, "model") && strings.Contains(normalized, "not found"):
		return &APIError{Kind: KindModelNotFound, Status: status, Body: body}
	case status == http.StatusTooManyRequests,
		strings.Contains(normalized, "rate limit"):
		return &APIError{Kind: KindRateLimited, Status: status, Body: body}
	default:
		return &APIError{Kind: KindHTTP, Status: status, Body: body}
	}
}
