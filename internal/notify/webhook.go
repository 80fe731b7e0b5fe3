package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"designqueue/internal/domain"
)

// Webhook posts each notification as JSON to a fixed URL.
type Webhook struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

type webhookPayload struct {
	UserID       string                      `json:"user_id"`
	Notification domain.ScheduleNotification `json:"notification"`
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second // default 10 seconds
	}
	return &Webhook{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Deliver(ctx context.Context, userID string, n domain.ScheduleNotification) error {
	if w.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	body, err := json.Marshal(webhookPayload{UserID: userID, Notification: n})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.Headers {
		req.Header.Set(key, value)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		if readErr != nil {
			return fmt.Errorf("webhook HTTP %d error (reading body: %v)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("webhook HTTP %d error: %s", resp.StatusCode, string(respBody))
	}
	if readErr != nil {
		log.Warn().Err(readErr).Str("user_id", userID).Msg("webhook response body unreadable")
	}
	return nil
}

// Log writes notifications to the process log. Used when no webhook is configured.
type Log struct{}

func (Log) Deliver(ctx context.Context, userID string, n domain.ScheduleNotification) error {
	log.Info().
		Str("user_id", userID).
		Str("task_id", n.TaskID).
		Str("notification_id", n.ID).
		Msg(n.Message)
	return nil
}
