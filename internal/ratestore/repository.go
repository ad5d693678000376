package ratestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-impor/internal/pricing"
)

// ErrNotFound is returned when no snapshot matches the lookup.
var ErrNotFound = errors.New("rate snapshot not found")

// Repository persists append-only rate snapshots. Numeric columns travel as
// text so no precision is lost in either direction.
type Repository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewRepository constructs a Postgres-backed snapshot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *Repository) headQuery() sq.SelectBuilder {
	return r.sb.
		Select("version", "effective_from", "source_currency", "destination_currency",
			"exchange_rate::text", "transport_base::text", "transport_per_kg::text", "margin_rate::text").
		From("rate_snapshots")
}

// Latest returns the newest snapshot whose effective time has passed.
func (r *Repository) Latest(ctx context.Context) (*pricing.RateSnapshot, error) {
	q := r.headQuery().
		Where(sq.LtOrEq{"effective_from": time.Now().UTC()}).
		OrderBy("effective_from DESC", "version DESC").
		Limit(1)
	return r.load(ctx, q)
}

// ByVersion returns one historical snapshot so an earlier quote can be reproduced.
func (r *Repository) ByVersion(ctx context.Context, version int64) (*pricing.RateSnapshot, error) {
	return r.load(ctx, r.headQuery().Where(sq.Eq{"version": version}))
}

func (r *Repository) load(ctx context.Context, q sq.SelectBuilder) (*pricing.RateSnapshot, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var snap pricing.RateSnapshot
	var exchange, base, perKg, margin string
	err = r.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&snap.Version,
		&snap.EffectiveFrom,
		&snap.SourceCurrency,
		&snap.DestinationCurrency,
		&exchange, &base, &perKg, &margin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if snap.ExchangeRate, err = decimal.NewFromString(exchange); err != nil {
		return nil, fmt.Errorf("exchange_rate: %w", err)
	}
	if snap.TransportBase, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("transport_base: %w", err)
	}
	if snap.TransportPerKg, err = decimal.NewFromString(perKg); err != nil {
		return nil, fmt.Errorf("transport_per_kg: %w", err)
	}
	if snap.MarginRate, err = decimal.NewFromString(margin); err != nil {
		return nil, fmt.Errorf("margin_rate: %w", err)
	}

	if snap.CustomsByCategory, err = r.loadCustoms(ctx, snap.Version); err != nil {
		return nil, fmt.Errorf("load customs: %w", err)
	}
	if snap.CurrencyRates, err = r.loadCurrencies(ctx, snap.Version); err != nil {
		return nil, fmt.Errorf("load currencies: %w", err)
	}
	return &snap, nil
}

func (r *Repository) loadCustoms(ctx context.Context, version int64) (map[pricing.Category]decimal.Decimal, error) {
	sqlStr, args, err := r.sb.
		Select("category", "rate::text").
		From("rate_snapshot_customs").
		Where(sq.Eq{"version": version}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[pricing.Category]decimal.Decimal)
	for rows.Next() {
		var cat, raw string
		if err := rows.Scan(&cat, &raw); err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("customs rate for %s: %w", cat, err)
		}
		out[pricing.Category(cat)] = rate
	}
	return out, rows.Err()
}

func (r *Repository) loadCurrencies(ctx context.Context, version int64) (map[string]decimal.Decimal, error) {
	sqlStr, args, err := r.sb.
		Select("code", "to_base::text").
		From("rate_snapshot_currencies").
		Where(sq.Eq{"version": version}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code, raw string
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", code, err)
		}
		out[code] = rate
	}
	return out, rows.Err()
}

// Append stores snap as a new version and returns the assigned version number.
// Existing versions are never modified.
func (r *Repository) Append(ctx context.Context, snap *pricing.RateSnapshot) (version int64, err error) {
	if err := snap.Validate(); err != nil {
		return 0, err
	}
	effective := snap.EffectiveFrom
	if effective.IsZero() {
		effective = time.Now().UTC()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sqlStr, args, err := r.sb.
		Insert("rate_snapshots").
		Columns("effective_from", "source_currency", "destination_currency",
			"exchange_rate", "transport_base", "transport_per_kg", "margin_rate").
		Values(effective, snap.SourceCurrency, snap.DestinationCurrency,
			numeric(snap.ExchangeRate), numeric(snap.TransportBase),
			numeric(snap.TransportPerKg), numeric(snap.MarginRate)).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, err
	}
	if err = tx.QueryRow(ctx, sqlStr, args...).Scan(&version); err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	if len(snap.CustomsByCategory) > 0 {
		ins := r.sb.Insert("rate_snapshot_customs").Columns("version", "category", "rate")
		for cat, rate := range snap.CustomsByCategory {
			ins = ins.Values(version, cat.String(), numeric(rate))
		}
		if sqlStr, args, err = ins.ToSql(); err != nil {
			return 0, err
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return 0, fmt.Errorf("insert customs rates: %w", err)
		}
	}

	if len(snap.CurrencyRates) > 0 {
		ins := r.sb.Insert("rate_snapshot_currencies").Columns("version", "code", "to_base")
		for code, rate := range snap.CurrencyRates {
			ins = ins.Values(version, code, numeric(rate))
		}
		if sqlStr, args, err = ins.ToSql(); err != nil {
			return 0, err
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return 0, fmt.Errorf("insert currency rates: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

func numeric(d decimal.Decimal) sq.Sqlizer {
	return sq.Expr("?::text::numeric", d.String())
}
