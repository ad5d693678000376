package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/noah-isme/backend-impor/internal/pricing"
)

// genericBrandWords never identify a brand family on their own.
var genericBrandWords = map[string]struct{}{
	"genuine": {}, "oem": {}, "original": {}, "parts": {}, "part": {},
	"motor": {}, "motors": {}, "co": {}, "inc": {}, "ltd": {}, "corp": {}, "gmbh": {},
}

// NormalizeBrand trims and collapses whitespace in a brand name.
func NormalizeBrand(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// BrandFamily reduces a brand name to the family it belongs to, so that
// "Toyota Genuine Parts" and "TOYOTA" compare equal.
func BrandFamily(brand string) string {
	tokens := strings.FieldsFunc(strings.ToLower(brand), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if _, generic := genericBrandWords[tok]; generic {
			continue
		}
		return tok
	}
	return ""
}

// NormalizePartNumber upper-cases a part number and strips spaces and dashes.
func NormalizePartNumber(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r == ' ' || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RawPart is a part as it arrives from a supplier feed, before normalisation.
type RawPart struct {
	ID             string  `json:"id"`
	PartNumber     string  `json:"partNumber"`
	OEMNumber      string  `json:"oemNumber"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Brand          string  `json:"brand"`
	UnitPrice      int64   `json:"unitPrice"`
	Quantity       int64   `json:"quantity"`
	Genuine        bool    `json:"genuine"`
	WarrantyMonths int     `json:"warrantyMonths"`
	WeightKg       float64 `json:"weightKg"`
}

// Import is one batch of catalog records.
type Import struct {
	Vehicles []Vehicle `json:"vehicles"`
	Parts    []RawPart `json:"parts"`
	Fitments []Fitment `json:"fitments"`
}

// Normalized is an import that satisfies the catalog invariants.
type Normalized struct {
	Vehicles []Vehicle
	Parts    []Part
	Fitments []Fitment
	Warnings []string
}

// NormalizeImport validates a batch at the import boundary: brand and category
// strings are normalised, part numbers must be unique per brand, and duplicate
// fitment pairs are dropped. Unrecognised categories are kept (pricing falls back
// for them) and reported as warnings for catalog cleanup.
func NormalizeImport(in Import) (Normalized, error) {
	var out Normalized

	vehicles := make(map[string]struct{}, len(in.Vehicles))
	for i, v := range in.Vehicles {
		v.ID = strings.TrimSpace(v.ID)
		v.Make = strings.Join(strings.Fields(v.Make), " ")
		v.Model = strings.Join(strings.Fields(v.Model), " ")
		v.Engine = strings.TrimSpace(v.Engine)
		if v.ID == "" || v.Make == "" || v.Model == "" {
			return Normalized{}, fmt.Errorf("vehicle #%d: id, make and model are required: %w", i, ErrInvalidRecord)
		}
		if v.YearEnd == 0 {
			v.YearEnd = v.YearStart
		}
		if v.YearStart < 1900 || v.YearEnd > 2100 || v.YearStart > v.YearEnd {
			return Normalized{}, fmt.Errorf("vehicle %s: invalid year range %d-%d: %w", v.ID, v.YearStart, v.YearEnd, ErrInvalidRecord)
		}
		if _, dup := vehicles[v.ID]; dup {
			return Normalized{}, fmt.Errorf("vehicle %s: duplicate id: %w", v.ID, ErrInvalidRecord)
		}
		vehicles[v.ID] = struct{}{}
		out.Vehicles = append(out.Vehicles, v)
	}

	parts := make(map[string]struct{}, len(in.Parts))
	numbers := make(map[string]string, len(in.Parts))
	for i, raw := range in.Parts {
		p, warn, err := normalizePart(raw)
		if err != nil {
			return Normalized{}, fmt.Errorf("part #%d: %w", i, err)
		}
		if warn != "" {
			out.Warnings = append(out.Warnings, warn)
		}
		if _, dup := parts[p.ID]; dup {
			return Normalized{}, fmt.Errorf("part %s: duplicate id: %w", p.ID, ErrInvalidRecord)
		}
		key := strings.ToLower(p.Brand) + "|" + p.PartNumber
		if other, dup := numbers[key]; dup {
			return Normalized{}, fmt.Errorf("part %s: part number %s already used by %s for brand %s: %w", p.ID, p.PartNumber, other, p.Brand, ErrInvalidRecord)
		}
		parts[p.ID] = struct{}{}
		numbers[key] = p.ID
		out.Parts = append(out.Parts, p)
	}

	seen := make(map[Fitment]struct{}, len(in.Fitments))
	for _, f := range in.Fitments {
		f.PartID = strings.TrimSpace(f.PartID)
		f.VehicleID = strings.TrimSpace(f.VehicleID)
		if _, ok := parts[f.PartID]; !ok {
			return Normalized{}, fmt.Errorf("fitment %s/%s: %w", f.PartID, f.VehicleID, ErrPartNotFound)
		}
		if _, ok := vehicles[f.VehicleID]; !ok {
			return Normalized{}, fmt.Errorf("fitment %s/%s: %w", f.PartID, f.VehicleID, ErrVehicleNotFound)
		}
		key := Fitment{PartID: f.PartID, VehicleID: f.VehicleID}
		if _, dup := seen[key]; dup {
			out.Warnings = append(out.Warnings, fmt.Sprintf("fitment %s/%s: duplicate pair dropped", f.PartID, f.VehicleID))
			continue
		}
		seen[key] = struct{}{}
		f.Note = strings.TrimSpace(f.Note)
		out.Fitments = append(out.Fitments, f)
	}
	return out, nil
}

func normalizePart(raw RawPart) (Part, string, error) {
	p := Part{
		ID:             strings.TrimSpace(raw.ID),
		PartNumber:     NormalizePartNumber(raw.PartNumber),
		OEMNumber:      NormalizePartNumber(raw.OEMNumber),
		Name:           strings.Join(strings.Fields(raw.Name), " "),
		Brand:          NormalizeBrand(raw.Brand),
		UnitPrice:      raw.UnitPrice,
		Quantity:       raw.Quantity,
		Genuine:        raw.Genuine,
		WarrantyMonths: raw.WarrantyMonths,
		WeightKg:       raw.WeightKg,
	}
	if p.ID == "" || p.PartNumber == "" || p.Name == "" {
		return Part{}, "", fmt.Errorf("id, part number and name are required: %w", ErrInvalidRecord)
	}
	if p.Brand == "" {
		return Part{}, "", fmt.Errorf("part %s: brand is required: %w", p.ID, ErrInvalidRecord)
	}
	if p.UnitPrice <= 0 {
		return Part{}, "", fmt.Errorf("part %s: unit price must be positive: %w", p.ID, ErrInvalidRecord)
	}
	if p.Quantity < 0 {
		return Part{}, "", fmt.Errorf("part %s: quantity must not be negative: %w", p.ID, ErrInvalidRecord)
	}
	if p.WeightKg <= 0 || p.WeightKg > pricing.MaxWeightKg {
		return Part{}, "", fmt.Errorf("part %s: weight must be within (0, %d] kg: %w", p.ID, pricing.MaxWeightKg, ErrInvalidRecord)
	}
	if p.WarrantyMonths < 0 {
		p.WarrantyMonths = 0
	}
	cat, known := pricing.ParseCategory(raw.Category)
	if cat == "" {
		cat = pricing.CategoryOther
		known = true
	}
	p.Category = cat
	var warn string
	if !known {
		warn = fmt.Sprintf("part %s: unrecognised category %q", p.ID, raw.Category)
	}
	return p, warn, nil
}
