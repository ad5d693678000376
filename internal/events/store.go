package events

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore writes events to the domain_events table.
type PgStore struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewPgStore constructs a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// InsertDomainEvent persists ev and returns it with the stored timestamp.
func (s *PgStore) InsertDomainEvent(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, errors.New("events: pool not configured")
	}
	sqlStr, args, err := s.sb.
		Insert("domain_events").
		Columns("id", "topic", "aggregate_id", "payload", "occurred_at").
		Values(ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt).
		Suffix("RETURNING occurred_at").
		ToSql()
	if err != nil {
		return Event{}, err
	}
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&ev.OccurredAt); err != nil {
		return Event{}, err
	}
	return ev, nil
}
