package catalog

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-impor/internal/pricing"
)

// Repository reads and writes catalog tables.
type Repository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewRepository constructs a Postgres-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// LoadSnapshot reads vehicles, parts and fitments into a fresh snapshot.
func (r *Repository) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("catalog: repository not configured")
	}
	vehicles, err := r.listVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	parts, err := r.listParts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	fitments, err := r.listFitments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fitments: %w", err)
	}
	return NewSnapshot(vehicles, parts, fitments), nil
}

func (r *Repository) listVehicles(ctx context.Context) ([]Vehicle, error) {
	sqlStr, args, err := r.sb.
		Select("id", "make", "model", "year_start", "year_end", "engine").
		From("vehicles").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Make, &v.Model, &v.YearStart, &v.YearEnd, &v.Engine); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) listParts(ctx context.Context) ([]Part, error) {
	sqlStr, args, err := r.sb.
		Select("id", "part_number", "oem_number", "name", "category", "brand",
			"unit_price", "quantity", "genuine", "warranty_months", "weight_kg").
		From("parts").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Part
	for rows.Next() {
		var (
			p   Part
			cat string
		)
		if err := rows.Scan(&p.ID, &p.PartNumber, &p.OEMNumber, &p.Name, &cat, &p.Brand,
			&p.UnitPrice, &p.Quantity, &p.Genuine, &p.WarrantyMonths, &p.WeightKg); err != nil {
			return nil, err
		}
		p.Category = pricing.Category(cat)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) listFitments(ctx context.Context) ([]Fitment, error) {
	sqlStr, args, err := r.sb.
		Select("part_id", "vehicle_id", "note").
		From("fitments").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fitment
	for rows.Next() {
		var f Fitment
		if err := rows.Scan(&f.PartID, &f.VehicleID, &f.Note); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Upsert writes a normalised import in one transaction. Existing rows are
// updated in place; fitment pairs are inserted once.
func (r *Repository) Upsert(ctx context.Context, batch Normalized) (err error) {
	if r == nil || r.pool == nil {
		return errors.New("catalog: repository not configured")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, v := range batch.Vehicles {
		sqlStr, args, buildErr := r.sb.
			Insert("vehicles").
			Columns("id", "make", "model", "year_start", "year_end", "engine").
			Values(v.ID, v.Make, v.Model, v.YearStart, v.YearEnd, v.Engine).
			Suffix("ON CONFLICT (id) DO UPDATE SET make = EXCLUDED.make, model = EXCLUDED.model, " +
				"year_start = EXCLUDED.year_start, year_end = EXCLUDED.year_end, engine = EXCLUDED.engine").
			ToSql()
		if buildErr != nil {
			return buildErr
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("upsert vehicle %s: %w", v.ID, err)
		}
	}

	for _, p := range batch.Parts {
		sqlStr, args, buildErr := r.sb.
			Insert("parts").
			Columns("id", "part_number", "oem_number", "name", "category", "brand",
				"unit_price", "quantity", "genuine", "warranty_months", "weight_kg").
			Values(p.ID, p.PartNumber, p.OEMNumber, p.Name, p.Category.String(), p.Brand,
				p.UnitPrice, p.Quantity, p.Genuine, p.WarrantyMonths, p.WeightKg).
			Suffix("ON CONFLICT (id) DO UPDATE SET part_number = EXCLUDED.part_number, " +
				"oem_number = EXCLUDED.oem_number, name = EXCLUDED.name, category = EXCLUDED.category, " +
				"brand = EXCLUDED.brand, unit_price = EXCLUDED.unit_price, quantity = EXCLUDED.quantity, " +
				"genuine = EXCLUDED.genuine, warranty_months = EXCLUDED.warranty_months, " +
				"weight_kg = EXCLUDED.weight_kg, updated_at = now()").
			ToSql()
		if buildErr != nil {
			return buildErr
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("upsert part %s: %w", p.ID, err)
		}
	}

	for _, f := range batch.Fitments {
		sqlStr, args, buildErr := r.sb.
			Insert("fitments").
			Columns("part_id", "vehicle_id", "note").
			Values(f.PartID, f.VehicleID, f.Note).
			Suffix("ON CONFLICT (part_id, vehicle_id) DO NOTHING").
			ToSql()
		if buildErr != nil {
			return buildErr
		}
		if _, err = tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert fitment %s/%s: %w", f.PartID, f.VehicleID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
