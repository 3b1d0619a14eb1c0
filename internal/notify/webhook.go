// Package notify posts agent run results to a webhook.
//
// Each finished run is sent as one JSON event. When a secret is configured
// the body is signed with HMAC-SHA256 in the X-Ragjenkins-Signature header,
// so receivers can verify the sender.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// ── Event types ─────────────────────────────────────────────

// EventType describes what happened.
type EventType string

const (
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"
)

// Event is the webhook payload.
type Event struct {
	Type        EventType         `json:"type"`
	RunID       string            `json:"run_id"`
	Instruction string            `json:"instruction"`
	JobName     string            `json:"job_name,omitempty"`
	State       models.AgentState `json:"state"`
	FinalAnswer string            `json:"final_answer,omitempty"`
	Error       string            `json:"error,omitempty"`
	Tools       []string          `json:"tools"`
	Iterations  int               `json:"iterations"`
	TotalMs     int64             `json:"total_ms"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewEvent summarises a finished turn.
func NewEvent(turn *models.AgentTurn) Event {
	ev := Event{
		Type:        EventRunCompleted,
		RunID:       turn.ID,
		Instruction: turn.Instruction,
		JobName:     turn.JobName,
		State:       turn.State,
		FinalAnswer: turn.FinalAnswer,
		Error:       turn.Error,
		Tools:       make([]string, 0, len(turn.Invocations)),
		Iterations:  turn.Iterations,
		TotalMs:     turn.TotalMs,
		Timestamp:   time.Now().UTC(),
	}
	if turn.State != models.StateDone {
		ev.Type = EventRunFailed
	}
	for _, inv := range turn.Invocations {
		ev.Tools = append(ev.Tools, inv.Tool)
	}
	return ev
}

// ── Webhook ──────────────────────────────────────────────────

// Option configures a Webhook.
type Option func(*Webhook)

// WithSecret enables HMAC-SHA256 signing.
func WithSecret(secret string) Option {
	return func(w *Webhook) { w.secret = secret }
}

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(n int) Option {
	return func(w *Webhook) { w.retries = n }
}

// Webhook delivers run events in the background. It implements
// agent.Observer.
type Webhook struct {
	url     string
	secret  string
	client  *http.Client
	retries int
	wg      sync.WaitGroup
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 15 * time.Second},
		retries: 2,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) StateChanged(context.Context, string, models.AgentState, string) {}

func (w *Webhook) ToolCalled(context.Context, string, models.ToolInvocation) {}

// RunFinished queues delivery of the turn's event. Delivery outlives the
// request that produced the turn.
func (w *Webhook) RunFinished(ctx context.Context, turn *models.AgentTurn) {
	event := NewEvent(turn)
	ctx = context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Send(ctx, event); err != nil {
			log.Warn().Err(err).Str("run", event.RunID).Msg("Run notification failed")
			return
		}
		log.Debug().Str("run", event.RunID).Str("event", string(event.Type)).Msg("Run notification delivered")
	}()
}

// Wait blocks until queued deliveries finish or ctx is done.
func (w *Webhook) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts one event, retrying transport errors and non-2xx responses
// with exponential backoff. 4xx responses other than 429 are not retried.
func (w *Webhook) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	var sig string
	if w.secret != "" {
		mac := hmac.New(sha256.New, []byte(w.secret))
		mac.Write(body)
		sig = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(w.retries, 0))),
		ctx,
	)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ragjenkins-webhook/1.0")
		req.Header.Set("X-Ragjenkins-Event", string(event.Type))
		if sig != "" {
			req.Header.Set("X-Ragjenkins-Signature", sig)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return backoff.Permanent(fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, w.url))
		default:
			return fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, w.url)
		}
	}, policy)
}
