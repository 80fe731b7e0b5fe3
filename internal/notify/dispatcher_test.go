package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designqueue/internal/domain"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered []string
	done      chan struct{}
}

func (r *recordingDeliverer) Deliver(ctx context.Context, userID string, n domain.ScheduleNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failFirst {
		return errors.New("boom")
	}
	r.delivered = append(r.delivered, userID+":"+n.ID)
	if r.done != nil {
		r.done <- struct{}{}
	}
	return nil
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	rec := &recordingDeliverer{failFirst: 2, done: make(chan struct{}, 1)}
	d := NewDispatcher(rec, Config{Workers: 1, RetryMax: 3})
	var mu sync.Mutex
	var waits []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) bool {
		mu.Lock()
		waits = append(waits, dur)
		mu.Unlock()
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()

	require.True(t, d.Notify("u1", domain.ScheduleNotification{ID: "n1"}))
	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
	cancel()
	<-stopped

	assert.Equal(t, []string{"u1:n1"}, rec.delivered)
	assert.Equal(t, 3, rec.calls)
	mu.Lock()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	mu.Unlock()
}

func TestDispatcherGivesUpAfterRetryMax(t *testing.T) {
	rec := &recordingDeliverer{failFirst: 100}
	d := NewDispatcher(rec, Config{Workers: 1, RetryMax: 2})
	d.sleep = func(ctx context.Context, dur time.Duration) bool { return true }

	d.deliver(context.Background(), envelope{userID: "u1", note: domain.ScheduleNotification{ID: "n1"}})

	assert.Equal(t, 3, rec.calls)
	assert.Empty(t, rec.delivered)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recordingDeliverer{}, Config{QueueSize: 1})

	assert.True(t, d.Notify("u1", domain.ScheduleNotification{ID: "a"}))
	assert.False(t, d.Notify("u1", domain.ScheduleNotification{ID: "b"}))
}

func TestBackoffExp(t *testing.T) {
	assert.Equal(t, time.Second, backoffExp(0))
	assert.Equal(t, time.Second, backoffExp(1))
	assert.Equal(t, 8*time.Second, backoffExp(4))
	assert.Equal(t, 60*time.Second, backoffExp(7))
	assert.Equal(t, 60*time.Second, backoffExp(40))
}

func TestWebhookDeliver(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second)
	hook.Headers = map[string]string{"X-Token": "secret"}
	err := hook.Deliver(context.Background(), "u1", domain.ScheduleNotification{ID: "n1", TaskID: "tsk_1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "tsk_1", got.Notification.TaskID)
	assert.Equal(t, "hi", got.Notification.Message)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Deliver(context.Background(), "u1", domain.ScheduleNotification{ID: "n1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	assert.Error(t, (&Webhook{}).Deliver(context.Background(), "u1", domain.ScheduleNotification{}))
}

func TestWebhookErrorWithTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		defer conn.Close()
		buf.WriteString("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 100\r\n\r\npartial")
		buf.Flush()
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Deliver(context.Background(), "u1", domain.ScheduleNotification{ID: "n1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "reading body")
}
