package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres SQLSTATEs for transactions aborted by a concurrent one.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Repository persists orders in Postgres.
type Repository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewRepository constructs a Postgres-backed order repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Create decrements stock for every item and inserts the order in one
// transaction. A failed conditional decrement rolls everything back and
// returns a *StockError; a deadlock or serialization failure returns an error
// wrapping ErrContention.
func (r *Repository) Create(ctx context.Context, o Order) (Order, error) {
	stored, err := r.create(ctx, o)
	return stored, classifyTxError(err)
}

func (r *Repository) create(ctx context.Context, o Order) (Order, error) {
	if r == nil || r.pool == nil {
		return Order{}, errors.New("order: repository not configured")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, it := range lockOrder(o.Items) {
		sqlStr, args, err := r.sb.
			Update("parts").
			Set("quantity", sq.Expr("quantity - ?", it.Qty)).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"id": it.PartID}).
			Where(sq.GtOrEq{"quantity": it.Qty}).
			ToSql()
		if err != nil {
			return Order{}, err
		}
		tag, err := tx.Exec(ctx, sqlStr, args...)
		if err != nil {
			return Order{}, fmt.Errorf("decrement stock %s: %w", it.PartID, err)
		}
		if tag.RowsAffected() == 0 {
			return Order{}, &StockError{PartID: it.PartID, Requested: it.Qty}
		}
	}

	sqlStr, args, err := r.sb.
		Insert("orders").
		Columns("id", "cart_id", "vehicle_id", "status", "currency", "snapshot_version",
			"total_supplier", "total_transport", "total_customs", "total_margin", "total").
		Values(o.ID, o.CartID, o.VehicleID, o.Status, o.Currency, o.SnapshotVersion,
			o.Totals.Supplier, o.Totals.Transport, o.Totals.Customs, o.Totals.Margin, o.Totals.Total).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return Order{}, err
	}
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&o.CreatedAt); err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	items := r.sb.Insert("order_items").
		Columns("order_id", "part_id", "name", "qty", "unit_supplier", "unit_transport",
			"unit_customs", "unit_margin", "unit_price", "line_total")
	for _, it := range o.Items {
		items = items.Values(o.ID, it.PartID, it.Name, it.Qty, it.UnitSupplier, it.UnitTransport,
			it.UnitCustoms, it.UnitMargin, it.UnitPrice, it.LineTotal)
	}
	sqlStr, args, err = items.ToSql()
	if err != nil {
		return Order{}, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return Order{}, fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Get loads an order with its items.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	if r == nil || r.pool == nil {
		return Order{}, errors.New("order: repository not configured")
	}
	sqlStr, args, err := r.sb.
		Select("id", "cart_id", "vehicle_id", "status", "currency", "snapshot_version",
			"total_supplier", "total_transport", "total_customs", "total_margin", "total", "created_at").
		From("orders").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Order{}, err
	}
	var o Order
	err = r.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&o.ID, &o.CartID, &o.VehicleID, &o.Status, &o.Currency, &o.SnapshotVersion,
		&o.Totals.Supplier, &o.Totals.Transport, &o.Totals.Customs, &o.Totals.Margin, &o.Totals.Total, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	sqlStr, args, err = r.sb.
		Select("part_id", "name", "qty", "unit_supplier", "unit_transport", "unit_customs",
			"unit_margin", "unit_price", "line_total").
		From("order_items").
		Where(sq.Eq{"order_id": id}).
		OrderBy("part_id").
		ToSql()
	if err != nil {
		return Order{}, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.PartID, &it.Name, &it.Qty, &it.UnitSupplier, &it.UnitTransport,
			&it.UnitCustoms, &it.UnitMargin, &it.UnitPrice, &it.LineTotal); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// lockOrder returns items sorted by part id so every commit takes the parts row
// locks in the same order.
func lockOrder(items []Item) []Item {
	return slices.SortedStableFunc(slices.Values(items), func(a, b Item) int {
		return strings.Compare(a.PartID, b.PartID)
	})
}

func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return fmt.Errorf("%w: %w", ErrContention, err)
	}
	return err
}
