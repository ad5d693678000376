package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

// Service answers catalog browsing queries against the current snapshot.
type Service struct {
	store        *Store
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        *Store
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters and the page for fitment listings.
type ListParams struct {
	common.PageParams
	Category pricing.Category
	Brand    string
	InStock  bool
}

// PartListResult contains a page of parts and its position in the full list.
type PartListResult struct {
	Items []Part
	Page  common.PageMeta
}

// PartDetail is a part together with what it fits.
type PartDetail struct {
	Part
	BrandFamily string    `json:"brandFamily"`
	InStock     bool      `json:"inStock"`
	Fits        []Vehicle `json:"fits"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{store: cfg.Store, defaultLimit: defaultLimit, maxLimit: maxLimit}, nil
}

// ParseListParams normalises page/limit and filter query values.
func (s *Service) ParseListParams(r *http.Request) (ListParams, error) {
	q := r.URL.Query()
	page, err := common.ParsePage(q, s.defaultLimit, s.maxLimit)
	if err != nil {
		return ListParams{}, err
	}
	params := ListParams{PageParams: page}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		cat, ok := pricing.ParseCategory(raw)
		if !ok {
			return params, common.InvalidInput("category", "unknown category", nil)
		}
		params.Category = cat
	}
	params.Brand = BrandFamily(q.Get("brand"))
	switch strings.ToLower(strings.TrimSpace(q.Get("inStock"))) {
	case "", "false", "0":
	case "true", "1":
		params.InStock = true
	default:
		return params, common.InvalidInput("inStock", "inStock must be true or false", nil)
	}
	return params, nil
}

// PartsForVehicle lists the parts declared to fit vehicleID, cheapest first.
func (s *Service) PartsForVehicle(_ context.Context, vehicleID string, params ListParams) (PartListResult, error) {
	snap := s.store.Current()
	vehicleID = strings.TrimSpace(vehicleID)
	if _, ok := snap.Vehicle(vehicleID); !ok {
		return PartListResult{}, common.NotFound("VEHICLE_NOT_FOUND", "vehicle not found", ErrVehicleNotFound)
	}
	parts := snap.PartsByIDs(snap.Fitments().PartsForVehicle(vehicleID))
	parts = lo.Filter(parts, func(p Part, _ int) bool {
		if params.Category != "" && p.Category != params.Category {
			return false
		}
		if params.Brand != "" && p.BrandFamily() != params.Brand {
			return false
		}
		if params.InStock && p.Quantity <= 0 {
			return false
		}
		return true
	})
	SortParts(parts)
	return paginate(parts, params.PageParams), nil
}

// VehiclesForPart lists the vehicles partID fits.
func (s *Service) VehiclesForPart(_ context.Context, partID string) ([]Vehicle, error) {
	snap := s.store.Current()
	partID = strings.TrimSpace(partID)
	if _, ok := snap.Part(partID); !ok {
		return nil, common.NotFound("PART_NOT_FOUND", "part not found", ErrPartNotFound)
	}
	return snap.VehiclesByIDs(snap.Fitments().VehiclesForPart(partID)), nil
}

// Part returns one part with its fitment list.
func (s *Service) Part(_ context.Context, partID string) (PartDetail, error) {
	snap := s.store.Current()
	p, ok := snap.Part(strings.TrimSpace(partID))
	if !ok {
		return PartDetail{}, common.NotFound("PART_NOT_FOUND", "part not found", ErrPartNotFound)
	}
	return PartDetail{
		Part:        p,
		BrandFamily: p.BrandFamily(),
		InStock:     p.Quantity > 0,
		Fits:        snap.VehiclesByIDs(snap.Fitments().VehiclesForPart(p.ID)),
	}, nil
}

func paginate(parts []Part, page common.PageParams) PartListResult {
	start, end := page.Bounds(len(parts))
	items := parts[start:end]
	if len(items) == 0 {
		items = []Part{}
	}
	return PartListResult{Items: items, Page: page.Meta(len(parts))}
}
