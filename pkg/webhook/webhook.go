// Package webhook provides HTTP webhook notification support for PatchGate
// run outcomes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/model"
)

// EventType represents the type of event that can trigger webhooks.
type EventType string

const (
	EventRunSucceeded      EventType = "run.succeeded"
	EventRunFailed         EventType = "run.failed"
	EventRollbackCompleted EventType = "rollback.completed"
	EventRollbackFailed    EventType = "rollback.failed"
)

// SignatureHeader carries the HMAC of the request body when a secret is set.
const SignatureHeader = "X-PatchGate-Signature"

// Event represents an event payload sent to webhooks.
type Event struct {
	Event        EventType         `json:"event"`
	Timestamp    string            `json:"timestamp"`
	Workdir      string            `json:"workdir,omitempty"`
	PatchSetID   string            `json:"patchSetId,omitempty"`
	Source       string            `json:"source,omitempty"`
	SnapshotPath string            `json:"snapshotPath,omitempty"`
	Applied      int               `json:"applied"`
	Blocked      int               `json:"blocked"`
	Errors       int               `json:"errors"`
	Error        string            `json:"error,omitempty"`
	Entry        *model.AuditEntry `json:"entry,omitempty"`
}

// Config represents the webhook configuration.
type Config struct {
	URL        string
	Secret     string
	Events     []EventType
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the default webhook configuration. It has no URL
// and therefore sends nothing.
func DefaultConfig() *Config {
	return &Config{
		Events:     []EventType{"*"},
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// FromSettings converts the file/env settings into a client config.
func FromSettings(s config.WebhookConfig) *Config {
	cfg := DefaultConfig()
	cfg.URL = s.URL
	cfg.Secret = s.Secret
	cfg.Timeout = s.TimeoutDuration()
	cfg.MaxRetries = s.MaxRetries
	if len(s.Events) > 0 {
		cfg.Events = cfg.Events[:0]
		for _, e := range s.Events {
			cfg.Events = append(cfg.Events, EventType(e))
		}
	}
	return cfg
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	now    func() time.Time
}

// NewClient creates a new webhook client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Enabled reports whether the client has somewhere to send events.
func (c *Client) Enabled() bool {
	return c != nil && c.config.URL != ""
}

// Send delivers event if the hook subscribes to it, retrying on transport
// errors and non-2xx responses.
func (c *Client) Send(ctx context.Context, event Event) error {
	if !c.Enabled() || !c.matchesEvent(event.Event) {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = c.now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(ctx, event.Event, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("webhook %s: %w", event.Event, lastErr)
}

// Record sends the run outcome described by entry. It satisfies the audit
// sink interface so a client can be chained after the audit log.
func (c *Client) Record(ctx context.Context, entry *model.AuditEntry) error {
	ev := EventRunSucceeded
	if !entry.Success {
		ev = EventRunFailed
	}
	return c.Send(ctx, Event{
		Event:        ev,
		Timestamp:    entry.Timestamp.UTC().Format(time.RFC3339),
		PatchSetID:   entry.PatchSetID,
		Source:       entry.Source,
		SnapshotPath: entry.SnapshotPath,
		Applied:      len(entry.Applied),
		Blocked:      len(entry.Blocked),
		Errors:       len(entry.Errors),
		Entry:        entry,
	})
}

// SendRollback sends a rollback.completed or rollback.failed event.
func (c *Client) SendRollback(ctx context.Context, workdir, snapshotPath string, rollbackErr error) error {
	ev := Event{
		Event:        EventRollbackCompleted,
		Workdir:      workdir,
		SnapshotPath: snapshotPath,
	}
	if rollbackErr != nil {
		ev.Event = EventRollbackFailed
		ev.Error = rollbackErr.Error()
	}
	return c.Send(ctx, ev)
}

func (c *Client) createRequest(ctx context.Context, event EventType, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PatchGate-Webhook/1.0")
	req.Header.Set("X-PatchGate-Event", string(event))

	if c.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, c.config.Secret))
	}
	return req, nil
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) matchesEvent(event EventType) bool {
	for _, e := range c.config.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
