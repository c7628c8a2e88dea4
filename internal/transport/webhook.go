// Package transport carries outbound messages to the messaging
// platform bridge.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Webhook posts outbound messages to the platform bridge over HTTP.
type Webhook struct {
	client  *http.Client
	baseURL string
}

func NewWebhook(baseURL string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type outboundMessage struct {
	UserID   int64      `json:"user_id"`
	Text     string     `json:"text"`
	Keyboard [][]string `json:"keyboard,omitempty"`
}

type outboundTyping struct {
	UserID int64 `json:"user_id"`
}

// SendMessage delivers text and an optional reply keyboard.
func (w *Webhook) SendMessage(ctx context.Context, userID int64, text string, keyboard [][]string) error {
	return w.post(ctx, "/send", outboundMessage{UserID: userID, Text: text, Keyboard: keyboard})
}

// SendTyping refreshes the typing indicator for the user's chat.
func (w *Webhook) SendTyping(ctx context.Context, userID int64) error {
	return w.post(ctx, "/typing", outboundTyping{UserID: userID})
}

func (w *Webhook) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbound payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s: http %d", path, resp.StatusCode)
	}
	return nil
}
