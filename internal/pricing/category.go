package pricing

import "strings"

// Category classifies a sellable item for customs purposes.
type Category string

// Product categories.
const (
	CategoryVehicles    Category = "vehicles"
	CategoryElectronics Category = "electronics"
	CategoryAppliances  Category = "appliances"
)

// Part categories.
const (
	CategoryFilters      Category = "filters"
	CategoryBrakes       Category = "brakes"
	CategoryIgnition     Category = "ignition"
	CategoryTiming       Category = "timing"
	CategoryCooling      Category = "cooling"
	CategoryElectrical   Category = "electrical"
	CategoryLighting     Category = "lighting"
	CategorySuspension   Category = "suspension"
	CategoryTransmission Category = "transmission"
	CategoryClimate      Category = "climate"
	CategoryLubricants   Category = "lubricants"
	CategoryOther        Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryVehicles:     {},
	CategoryElectronics:  {},
	CategoryAppliances:   {},
	CategoryFilters:      {},
	CategoryBrakes:       {},
	CategoryIgnition:     {},
	CategoryTiming:       {},
	CategoryCooling:      {},
	CategoryElectrical:   {},
	CategoryLighting:     {},
	CategorySuspension:   {},
	CategoryTransmission: {},
	CategoryClimate:      {},
	CategoryLubricants:   {},
	CategoryOther:        {},
}

// aliases maps spellings found in supplier feeds onto the closed enumeration.
var aliases = map[string]Category{
	"vehicle":       CategoryVehicles,
	"cars":          CategoryVehicles,
	"car":           CategoryVehicles,
	"electronic":    CategoryElectronics,
	"appliance":     CategoryAppliances,
	"filter":        CategoryFilters,
	"brake":         CategoryBrakes,
	"brake-system":  CategoryBrakes,
	"spark-plugs":   CategoryIgnition,
	"belts":         CategoryTiming,
	"timing-belts":  CategoryTiming,
	"radiators":     CategoryCooling,
	"lights":        CategoryLighting,
	"lamps":         CategoryLighting,
	"shocks":        CategorySuspension,
	"gearbox":       CategoryTransmission,
	"air-condition": CategoryClimate,
	"ac":            CategoryClimate,
	"oils":          CategoryLubricants,
	"oil":           CategoryLubricants,
	"misc":          CategoryOther,
	"miscellaneous": CategoryOther,
	"uncategorized": CategoryOther,
	"uncategorised": CategoryOther,
	"general":       CategoryOther,
}

// Known reports whether c belongs to the closed category enumeration.
func (c Category) Known() bool {
	_, ok := knownCategories[c]
	return ok
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }

// ParseCategory normalises a raw category string. The second result is false when
// the value is not recognised; the returned category is then the normalised raw
// value so that pricing can still apply the fallback customs rate.
func ParseCategory(raw string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "-", "_", "-", "&", "-").Replace(key)
	if c := Category(key); c.Known() {
		return c, true
	}
	if c, ok := aliases[key]; ok {
		return c, true
	}
	return Category(key), false
}

// Categories returns the closed enumeration in a stable order.
func Categories() []Category {
	return []Category{
		CategoryVehicles, CategoryElectronics, CategoryAppliances,
		CategoryFilters, CategoryBrakes, CategoryIgnition, CategoryTiming,
		CategoryCooling, CategoryElectrical, CategoryLighting, CategorySuspension,
		CategoryTransmission, CategoryClimate, CategoryLubricants, CategoryOther,
	}
}
