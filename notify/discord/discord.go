/*
Package discord delivers sanction messages to a Discord channel webhook.

PURPOSE:
  Converts a sanction.Message into one webhook embed and POSTs it.
  Without a webhook URL the notifier only logs, so development setups
  run without a Discord server.

PAYLOAD:
  {
    "username": "Rental Bot",
    "embeds": [{
      "title": "...", "description": "...", "color": 16753920,
      "fields": [{"name": "...", "value": "...", "inline": false}],
      "timestamp": "2026-03-02T00:40:00Z",
      "footer": {"text": "..."}
    }]
  }

SEE ALSO:
  - sanction/notify.go: Message building
*/
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/council/rental-sanctions/sanction"
)

const defaultTimeout = 10 * time.Second

// Embed colors per message level.
const (
	colorInfo    = 0x3498DB
	colorWarning = 0xFFA500
	colorError   = 0xE74C3C
)

// Notifier implements sanction.Notifier.
type Notifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     *log.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithLogger sets the logger used for log-only delivery and errors.
func WithLogger(l *log.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a notifier. An empty webhookURL disables delivery.
func New(webhookURL, username string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Send posts the message. Any non-2xx response is an error.
func (n *Notifier) Send(ctx context.Context, msg sanction.Message) error {
	if !n.Enabled() {
		n.logger.Printf("[Discord] (disabled) %s: %s (%d fields, %s)", msg.Title, msg.Description, len(msg.Fields), msg.Footer)
		return nil
	}

	body, err := json.Marshal(buildPayload(n.username, msg))
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
	return nil
}

func buildPayload(username string, msg sanction.Message) webhookPayload {
	e := embed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       levelColor(msg.Level),
	}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	if msg.Footer != "" {
		e.Footer = &embedFooter{Text: msg.Footer}
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value})
	}
	return webhookPayload{Username: username, Embeds: []embed{e}}
}

func levelColor(l sanction.Level) int {
	switch l {
	case sanction.LevelError:
		return colorError
	case sanction.LevelWarning:
		return colorWarning
	default:
		return colorInfo
	}
}
