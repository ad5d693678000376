package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes every event to the log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs the event.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("domain event")
	return nil
}
