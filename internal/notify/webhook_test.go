package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/notify"
	"github.com/noah-isme/backend-impor/internal/resilience"
)

func orderEvent() events.Event {
	return events.Event{
		ID:          uuid.New(),
		Topic:       events.TopicOrderCreated,
		AggregateID: "order-1",
		Payload:     json.RawMessage(`{"orderId":"order-1","total":5872500}`),
		OccurredAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSignsDelivery(t *testing.T) {
	type recorded struct {
		header http.Header
		body   []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	hook := &notify.Webhook{URL: srv.URL, Secret: "s3cret", Client: srv.Client(), Logger: zerolog.Nop()}
	ev := orderEvent()
	require.NoError(t, hook.Notify(context.Background(), ev))

	got := <-received
	require.Equal(t, ev.ID.String(), got.header.Get("X-Event-ID"))
	ts, err := strconv.ParseInt(got.header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, notify.ComputeSignature("s3cret", ts, ev.ID.String(), got.body), got.header.Get("X-Signature"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Equal(t, "order.created", payload["topic"])
	require.Equal(t, "order-1", payload["aggregateId"])
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	hook := &notify.Webhook{URL: srv.URL, Client: srv.Client(), Attempts: 3, Backoff: time.Millisecond, Logger: zerolog.Nop()}
	require.NoError(t, hook.Notify(context.Background(), orderEvent()))
	require.EqualValues(t, 2, calls.Load())
}

func TestWebhookOpenBreakerStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "webhook", MinRequests: 1, OpenFor: time.Hour})
	hook := &notify.Webhook{URL: srv.URL, Client: srv.Client(), Breaker: breaker, Attempts: 5, Backoff: time.Millisecond, Logger: zerolog.Nop()}

	err := hook.Notify(context.Background(), orderEvent())
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 1, calls.Load())
}

func TestWebhookSkipsOtherTopics(t *testing.T) {
	hook := &notify.Webhook{URL: "https://warehouse.invalid/hook", Topics: []string{events.TopicOrderCreated}}
	ev := orderEvent()
	ev.Topic = events.TopicRatesAppended
	require.NoError(t, hook.Notify(context.Background(), ev))
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, notify.ValidateURL("https://warehouse.example/hooks"))
	require.NoError(t, notify.ValidateURL("http://localhost:9000/hooks"))
	require.Error(t, notify.ValidateURL("http://warehouse.example/hooks"))
	require.Error(t, notify.ValidateURL("ftp://warehouse.example"))
	require.Error(t, notify.ValidateURL("https://"))
}
