// Package notify posts run outcomes to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	FormatDiscord = "discord"
	FormatSlack   = "slack"

	colorGreen = 65280
	colorRed   = 16711680
)

// Notifier receives run outcomes.
type Notifier interface {
	Installed(ctx context.Context, ev Event) error
	ReloadFailed(ctx context.Context, ev Event, cause error) error
}

// Event summarizes one run.
type Event struct {
	RunID       string
	Destination string
	Patterns    int
	Groups      int
	Reloaded    bool
}

type WebhookSender struct {
	URL    string
	Format string
	Client *http.Client
	now    func() time.Time
}

func NewWebhookSender(url, format string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Format: format,
		Client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (ws *WebhookSender) Installed(ctx context.Context, ev Event) error {
	text := fmt.Sprintf("Whitelist installed to %s: %d patterns in %d locations", ev.Destination, ev.Patterns, ev.Groups)
	if ev.Reloaded {
		text += ", nginx reloaded"
	}
	return ws.send(ctx, "Whitelist installed", text, colorGreen)
}

func (ws *WebhookSender) ReloadFailed(ctx context.Context, ev Event, cause error) error {
	text := fmt.Sprintf("Whitelist installed to %s but nginx reload failed\n\nError: %v", ev.Destination, cause)
	return ws.send(ctx, "nginx reload failed", text, colorRed)
}

func (ws *WebhookSender) send(ctx context.Context, title, text string, color int) error {
	if ws.URL == "" {
		return nil
	}

	var payload []byte
	var err error

	switch ws.Format {
	case FormatSlack:
		payload, err = json.Marshal(map[string]string{
			"text": fmt.Sprintf("*%s*\n%s", title, text),
		})
	default:
		payload, err = json.Marshal(map[string]interface{}{
			"embeds": []map[string]interface{}{
				{
					"title":       title,
					"description": text,
					"color":       color,
					"timestamp":   ws.now().UTC().Format(time.RFC3339),
				},
			},
		})
	}
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Installed(context.Context, Event) error           { return nil }
func (Discard) ReloadFailed(context.Context, Event, error) error { return nil }
