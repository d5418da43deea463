package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SlackConfig configures webhook delivery.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook endpoint.
	WebhookURL string

	// Timeout bounds one delivery attempt. Defaults to 10s.
	Timeout time.Duration

	// MaxRetries is how many times a failed delivery is retried.
	// Defaults to 3.
	MaxRetries int

	// RetryDelay is the pause between attempts. Defaults to 2s.
	RetryDelay time.Duration

	// QueueSize bounds the number of undelivered messages. Defaults to
	// 100.
	QueueSize int
}

func (c *SlackConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
}

// SlackNotifier posts guardrail notifications to a Slack webhook from a
// background worker.
type SlackNotifier struct {
	config SlackConfig
	http   *http.Client
	queue  chan Message
	logger *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSlackNotifier creates a notifier and starts its delivery worker.
func NewSlackNotifier(config SlackConfig) (*SlackNotifier, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("slack webhook url must not be empty")
	}
	config.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	n := &SlackNotifier{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		queue:  make(chan Message, config.QueueSize),
		logger: slog.With("component", "slack-notifier"),
		ctx:    ctx,
		cancel: cancel,
	}

	n.wg.Add(1)
	go n.worker()
	return n, nil
}

// Send queues msg for delivery. A full queue drops the message with a
// warning instead of blocking the caller.
func (n *SlackNotifier) Send(_ context.Context, msg Message) error {
	select {
	case n.queue <- msg:
	default:
		n.logger.Warn("notification queue full, dropping message",
			"kind", msg.Kind,
			"policy_id", msg.PolicyID,
			"execution_id", msg.ExecutionID)
	}
	return nil
}

// Close stops the worker after draining queued messages.
func (n *SlackNotifier) Close() error {
	n.closeOnce.Do(func() {
		n.cancel()
		n.wg.Wait()
	})
	return nil
}

func (n *SlackNotifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			// Drain what is already queued.
			for len(n.queue) > 0 {
				n.deliver(<-n.queue)
			}
			return
		case msg := <-n.queue:
			n.deliver(msg)
		}
	}
}

// deliver posts one message, retrying transient failures. A message that
// still fails after the retries is logged and dropped; notifications never
// fail the action they describe.
func (n *SlackNotifier) deliver(msg Message) {
	payload, err := json.Marshal(buildPayload(msg))
	if err != nil {
		n.logger.Error("encoding notification", "kind", msg.Kind, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-n.ctx.Done():
				// Shutting down; one attempt per drained message is
				// enough.
				n.logger.Warn("notification delivery abandoned on shutdown",
					"kind", msg.Kind, "error", lastErr)
				return
			case <-time.After(n.config.RetryDelay):
			}
		}

		if lastErr = n.post(payload); lastErr == nil {
			return
		}
	}

	n.logger.Error("notification delivery failed",
		"kind", msg.Kind,
		"policy_id", msg.PolicyID,
		"attempts", n.config.MaxRetries+1,
		"error", lastErr)
}

func (n *SlackNotifier) post(payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, n.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
