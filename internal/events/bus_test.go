package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/events"
)

type stubStore struct {
	last events.Event
	err  error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.last = ev
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", map[string]any{"orderId": "order-1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.last.Topic)
	require.Equal(t, "order-1", store.last.AggregateID)
	require.JSONEq(t, `{"orderId":"order-1"}`, string(store.last.Payload))
	require.NotEqual(t, [16]byte{}, [16]byte(event.ID))
	require.False(t, event.OccurredAt.IsZero())
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "order-1", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "a", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "a", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicOrderCreated, "a", nil)
	require.Error(t, err)
}

func TestEmitReportsStoreFailure(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, "a", nil)
	require.ErrorContains(t, err, "db down")
	require.Empty(t, notifier.events)
}

func TestOnTopicFiltersAndJoinsErrors(t *testing.T) {
	var seen []string
	boom := errors.New("refresh failed")
	bus := events.Bus{
		Store: &stubStore{},
		Notifiers: []events.Notifier{
			events.OnTopic(events.TopicOrderCreated, func(_ context.Context, ev events.Event) error {
				seen = append(seen, ev.AggregateID)
				return boom
			}),
		},
	}
	ev, err := bus.Emit(context.Background(), events.TopicRatesAppended, "3", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
	require.Empty(t, seen)

	ev, err = bus.Emit(context.Background(), events.TopicOrderCreated, "o-1", []byte(`{"n":1}`))
	require.ErrorIs(t, err, boom)
	require.Equal(t, "o-1", ev.AggregateID)
	require.Equal(t, []string{"o-1"}, seen)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := events.LogNotifier{Logger: zerolog.New(&buf)}
	require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicCatalogImported, AggregateID: "import", Payload: json.RawMessage(`{"parts":3}`)}))
	require.Contains(t, buf.String(), `"topic":"catalog.imported"`)
	require.Contains(t, buf.String(), `"payload":{"parts":3}`)
}
