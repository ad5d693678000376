package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

// RateSource supplies rate snapshots.
type RateSource interface {
	Latest(ctx context.Context) (*pricing.RateSnapshot, error)
	ByVersion(ctx context.Context, version int64) (*pricing.RateSnapshot, error)
}

// CatalogSource supplies the catalog snapshot parts are read from.
type CatalogSource interface {
	Current() *catalog.Snapshot
}

// Service turns supplier prices into landed-cost quotes bound to one snapshot.
type Service struct {
	rates   RateSource
	catalog CatalogSource
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Rates   RateSource
	Catalog CatalogSource
	Logger  zerolog.Logger
}

// Request prices an arbitrary item.
type Request struct {
	SourcePrice int64   `json:"sourcePrice" validate:"required,gt=0"`
	WeightKg    float64 `json:"weightKg" validate:"required,gt=0,lte=10000"`
	Category    string  `json:"category" validate:"max=64"`
	// SnapshotVersion reproduces a quote against a past snapshot when set.
	SnapshotVersion *int64 `json:"snapshotVersion,omitempty" validate:"omitempty,gte=0"`
}

// Quote is a display-ready price.
type Quote struct {
	PartID    string            `json:"partId,omitempty"`
	Quantity  int               `json:"quantity"`
	Unit      pricing.Breakdown `json:"unit"`
	LineTotal pricing.Money     `json:"lineTotal"`
}

// Conversion is the result of a currency conversion.
type Conversion struct {
	Amount          decimal.Decimal `json:"amount"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Result          decimal.Decimal `json:"result"`
	SnapshotVersion int64           `json:"snapshotVersion"`
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Rates == nil {
		return nil, errors.New("quote: rate source is required")
	}
	return &Service{rates: cfg.Rates, catalog: cfg.Catalog, logger: cfg.Logger}, nil
}

// Snapshot resolves the snapshot a quote binds to: a given version, or the latest.
func (s *Service) Snapshot(ctx context.Context, version *int64) (*pricing.RateSnapshot, error) {
	if version != nil {
		return s.rates.ByVersion(ctx, *version)
	}
	return s.rates.Latest(ctx)
}

// Price runs the engine against snap, recording metrics and logging category
// fallbacks so the catalog can be cleaned up.
func (s *Service) Price(snap *pricing.RateSnapshot, sourcePrice int64, weightKg float64, category pricing.Category) (pricing.Breakdown, error) {
	b, err := pricing.ComputePrice(sourcePrice, weightKg, category, snap)
	label := category.String()
	if !category.Known() {
		label = "unknown"
	}
	switch {
	case errors.Is(err, pricing.ErrInvalidInput):
		obs.IncCounter(obs.QuotesTotal, label, "invalid_input")
		return b, err
	case errors.Is(err, pricing.ErrRateSnapshotMissing):
		obs.IncCounter(obs.QuotesTotal, label, "snapshot_missing")
		return b, err
	case err != nil:
		obs.IncCounter(obs.QuotesTotal, label, "error")
		return b, err
	}
	if b.CategoryFallback {
		obs.IncCounter(obs.CategoryFallbackTotal, label)
		s.logger.Warn().
			Str("category", category.String()).
			Str("customs_rate", b.CustomsRate.String()).
			Int64("snapshot_version", b.SnapshotVersion).
			Msg("category has no customs rate, default applied")
	}
	obs.IncCounter(obs.QuotesTotal, label, "ok")
	return b, nil
}

// Quote prices an arbitrary item.
func (s *Service) Quote(ctx context.Context, req Request) (Quote, error) {
	category, _ := pricing.ParseCategory(req.Category)
	if category == "" {
		category = pricing.CategoryOther
	}
	snap, err := s.Snapshot(ctx, req.SnapshotVersion)
	if err != nil {
		return Quote{}, err
	}
	b, err := s.Price(snap, req.SourcePrice, req.WeightKg, category)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Quantity: 1, Unit: b, LineTotal: b.FinalPrice}, nil
}

// PartQuote prices qty units of a catalog part.
func (s *Service) PartQuote(ctx context.Context, partID string, qty int, version *int64) (Quote, error) {
	if qty <= 0 {
		qty = 1
	}
	var snap *catalog.Snapshot
	if s.catalog != nil {
		snap = s.catalog.Current()
	}
	part, ok := snap.Part(strings.TrimSpace(partID))
	if !ok {
		return Quote{}, common.NotFound("PART_NOT_FOUND", "part not found", catalog.ErrPartNotFound)
	}
	rates, err := s.Snapshot(ctx, version)
	if err != nil {
		return Quote{}, err
	}
	b, err := s.Price(rates, part.UnitPrice, part.WeightKg, part.Category)
	if err != nil {
		return Quote{}, fmt.Errorf("price part %s: %w", part.ID, err)
	}
	return Quote{PartID: part.ID, Quantity: qty, Unit: b, LineTotal: b.FinalPrice * pricing.Money(qty)}, nil
}

// Convert converts amount between two currencies of the latest snapshot.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	snap, err := s.rates.Latest(ctx)
	if err != nil {
		return Conversion{}, err
	}
	conv, err := snap.Converter()
	if err != nil {
		return Conversion{}, err
	}
	out, err := conv.Convert(amount, from, to)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{
		Amount:          amount,
		From:            strings.ToUpper(strings.TrimSpace(from)),
		To:              strings.ToUpper(strings.TrimSpace(to)),
		Result:          out,
		SnapshotVersion: snap.Version,
	}, nil
}

// AsAppError maps pricing failures onto HTTP errors.
func AsAppError(err error) error {
	var appErr *common.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, pricing.ErrInvalidInput):
		return common.InvalidInput("", err.Error(), err)
	case errors.Is(err, pricing.ErrRateSnapshotMissing):
		return common.Unavailable("RATE_SNAPSHOT_MISSING", "pricing is unavailable: no rate snapshot", err)
	default:
		return err
	}
}
