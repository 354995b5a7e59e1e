// Package notify posts operator alerts, such as a recipe tool provider that
// cannot be reached at startup, to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook posts {"channel", "text"} messages to an incoming-webhook URL.
type Webhook struct {
	url        string
	httpClient doer
}

func NewWebhook(url string, httpClient doer) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: httpClient,
	}
}

func (w *Webhook) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("failed to post message: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
	return nil
}

// Discard drops every message. It stands in when no webhook is configured.
type Discard struct{}

func (Discard) PostMessage(ctx context.Context, channel string, message string) error {
	slog.Debug("NOTIFY: No webhook configured; dropping message", "channel", channel)
	return nil
}

type poster interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// Alert reports err on channel. Delivery failures are logged, never
// returned, so callers on a failure path can always call it.
func Alert(ctx context.Context, p poster, channel, component string, err error) {
	msg := fmt.Sprintf(":rotating_light: %s failed: %v", component, err)
	if perr := p.PostMessage(ctx, channel, msg); perr != nil {
		slog.Error("NOTIFY: Failed to deliver alert", "component", component, "error", perr)
	}
}
