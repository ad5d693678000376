package compat

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/obs"
)

// DefaultMaxAlternatives caps the alternatives returned for an incompatible part.
const DefaultMaxAlternatives = 5

// Outcome codes returned alongside negative results.
const (
	CodeIncompatible    = "INCOMPATIBLE_PART"
	CodeOutOfStock      = "OUT_OF_STOCK"
	CodePartNotFound    = "PART_NOT_FOUND"
	CodeVehicleNotFound = "VEHICLE_NOT_FOUND"
)

// Result is the answer to "may this part be sold for this vehicle".
type Result struct {
	Compatible   bool     `json:"compatible"`
	Code         string   `json:"code,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Note         string   `json:"note,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// StockStatus is an optimistic, non-locking stock read.
type StockStatus struct {
	InStock           bool   `json:"inStock"`
	QuantityAvailable int64  `json:"quantityAvailable"`
	Code              string `json:"code,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Source supplies the catalog snapshot decisions are made against.
type Source interface {
	Current() *catalog.Snapshot
}

// Resolver answers compatibility and stock questions. Neither check returns an
// error: unknown identifiers yield a negative result with a reason.
type Resolver struct {
	source          Source
	maxAlternatives int
}

// NewResolver constructs a Resolver. maxAlternatives <= 0 selects the default.
func NewResolver(source Source, maxAlternatives int) *Resolver {
	if maxAlternatives <= 0 {
		maxAlternatives = DefaultMaxAlternatives
	}
	return &Resolver{source: source, maxAlternatives: maxAlternatives}
}

// CheckCompatibility reports whether partID is sellable for vehicleID. An empty
// vehicleID means no vehicle context is active and every part is compatible.
func (r *Resolver) CheckCompatibility(vehicleID, partID string) Result {
	res := r.checkCompatibility(r.snapshot(), strings.TrimSpace(vehicleID), strings.TrimSpace(partID))
	label := "compatible"
	if !res.Compatible {
		label = strings.ToLower(res.Code)
	}
	obs.IncCounter(obs.CompatibilityChecksTotal, label)
	return res
}

func (r *Resolver) checkCompatibility(snap *catalog.Snapshot, vehicleID, partID string) Result {
	if vehicleID == "" {
		// General browsing; unknown parts are rejected later by the stock check.
		return Result{Compatible: true}
	}
	part, ok := snap.Part(partID)
	if !ok {
		return Result{Code: CodePartNotFound, Reason: "part " + partID + " is not in the catalog"}
	}
	vehicle, ok := snap.Vehicle(vehicleID)
	if !ok {
		return Result{Code: CodeVehicleNotFound, Reason: "vehicle " + vehicleID + " is not in the catalog"}
	}
	index := snap.Fitments()
	if note, fits := index.Note(part.ID, vehicle.ID); fits {
		return Result{Compatible: true, Note: note}
	}
	return Result{
		Code:         CodeIncompatible,
		Reason:       part.Name + " does not fit " + describe(vehicle),
		Alternatives: r.alternatives(snap, part, vehicle.ID),
	}
}

// alternatives relaxes constraints in tiers: same category and brand family,
// then same category. The first non-empty tier wins.
func (r *Resolver) alternatives(snap *catalog.Snapshot, part catalog.Part, vehicleID string) []string {
	fitted := snap.PartsByIDs(snap.Fitments().PartsForVehicle(vehicleID))
	sameCategory := lo.Filter(fitted, func(p catalog.Part, _ int) bool {
		return p.ID != part.ID && p.Category == part.Category
	})
	family := part.BrandFamily()
	sameBrand := lo.Filter(sameCategory, func(p catalog.Part, _ int) bool {
		return family != "" && p.BrandFamily() == family
	})

	tier := sameBrand
	if len(tier) == 0 {
		tier = sameCategory
	}
	if len(tier) == 0 {
		return nil
	}
	catalog.SortParts(tier)
	if len(tier) > r.maxAlternatives {
		tier = tier[:r.maxAlternatives]
	}
	return lo.Map(tier, func(p catalog.Part, _ int) string { return p.ID })
}

// CheckStock reports the quantity on hand. The value may be stale by the time
// an order commits; commit re-validates it.
func (r *Resolver) CheckStock(partID string) StockStatus {
	status := r.checkStock(r.snapshot(), strings.TrimSpace(partID))
	label := "in_stock"
	switch {
	case status.Code == CodePartNotFound:
		label = "not_found"
	case !status.InStock:
		label = "out_of_stock"
	}
	obs.IncCounter(obs.StockChecksTotal, label)
	return status
}

func (r *Resolver) checkStock(snap *catalog.Snapshot, partID string) StockStatus {
	qty, ok := snap.Quantity(partID)
	if !ok {
		return StockStatus{Code: CodePartNotFound, Reason: "part " + partID + " is not in the catalog"}
	}
	if qty <= 0 {
		return StockStatus{QuantityAvailable: 0, Code: CodeOutOfStock, Reason: "part " + partID + " is out of stock"}
	}
	return StockStatus{InStock: true, QuantityAvailable: qty}
}

type pinned struct{ snap *catalog.Snapshot }

func (p pinned) Current() *catalog.Snapshot { return p.snap }

// Pin returns a resolver bound to the snapshot that is current now, so a
// sequence of checks sees one consistent catalog across refreshes.
func (r *Resolver) Pin() *Resolver {
	return &Resolver{source: pinned{snap: r.snapshot()}, maxAlternatives: r.maxAlternatives}
}

// Snapshot returns the snapshot the resolver currently reads.
func (r *Resolver) Snapshot() *catalog.Snapshot {
	return r.snapshot()
}

func (r *Resolver) snapshot() *catalog.Snapshot {
	if r == nil || r.source == nil {
		return nil
	}
	return r.source.Current()
}

func describe(v catalog.Vehicle) string {
	years := ""
	switch {
	case v.YearStart == 0:
	case v.YearEnd == 0 || v.YearEnd == v.YearStart:
		years = " " + strconv.Itoa(v.YearStart)
	default:
		years = " " + strconv.Itoa(v.YearStart) + "-" + strconv.Itoa(v.YearEnd)
	}
	out := v.Make + " " + v.Model + years
	if v.Engine != "" {
		out += " (" + v.Engine + ")"
	}
	return out
}
