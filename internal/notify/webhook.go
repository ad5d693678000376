// Package notify pushes domain events to external HTTP endpoints, e.g. the
// warehouse system that picks committed orders.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/resilience"
)

// ErrRejected marks a non-2xx answer from the endpoint.
var ErrRejected = errors.New("notify: webhook rejected")

// Webhook delivers events on selected topics to one endpoint. It implements
// events.Notifier.
type Webhook struct {
	URL    string
	Secret string
	// Topics limits delivery; empty means every topic.
	Topics   []string
	Client   *http.Client
	Breaker  *resilience.Breaker
	Attempts int
	Backoff  time.Duration
	Logger   zerolog.Logger
}

type envelope struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notify posts the event, retrying transient failures with backoff.
func (w *Webhook) Notify(ctx context.Context, event events.Event) error {
	if w == nil || !w.wants(event.Topic) {
		return nil
	}
	if err := ValidateURL(w.URL); err != nil {
		return err
	}
	body, err := json.Marshal(envelope{
		EventID:     event.ID.String(),
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		Data:        event.Payload,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return err
	}

	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	err = resilience.Retry(ctx, attempts, backoff, func(ctx context.Context) error {
		if w.Breaker == nil {
			return w.deliver(ctx, event, body)
		}
		return w.Breaker.Do(ctx, func(ctx context.Context) error { return w.deliver(ctx, event, body) })
	})
	result := "ok"
	if err != nil {
		result = "failed"
		w.Logger.Warn().Err(err).Str("event_id", event.ID.String()).Str("topic", event.Topic).Msg("webhook delivery failed")
	}
	obs.IncCounter(obs.WebhookDeliveries, event.Topic, result)
	return err
}

func (w *Webhook) wants(topic string) bool {
	return len(w.Topics) == 0 || slices.Contains(w.Topics, topic)
}

func (w *Webhook) deliver(ctx context.Context, event events.Event, body []byte) error {
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.topic", event.Topic),
		attribute.String("webhook.event_id", event.ID.String()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := time.Now().Unix()
	eventID := event.ID.String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "impor-api-webhooks/1.0")
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(w.Secret, ts, eventID, body))

	client := w.Client
	if client == nil {
		client = HTTPClient(5 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// ValidateURL accepts https endpoints, and plain http only for localhost.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	default:
		return errors.New("webhook url must be http or https")
	}
	return nil
}

// ComputeSignature is HMAC-SHA256 over "<ts>.<eventID>.<body>" with the
// shared secret, hex encoded.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns a traced client for webhook delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
