package catalog

import (
	"errors"

	"github.com/noah-isme/backend-impor/internal/pricing"
)

var (
	// ErrPartNotFound indicates the part identifier is not in the catalog.
	ErrPartNotFound = errors.New("part not found")
	// ErrVehicleNotFound indicates the vehicle identifier is not in the catalog.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrInvalidRecord is returned by import validation for records that break catalog invariants.
	ErrInvalidRecord = errors.New("invalid catalog record")
)

// Vehicle is a make/model/year-range/engine combination parts are fitted against.
type Vehicle struct {
	ID        string `json:"id"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	YearStart int    `json:"yearStart"`
	YearEnd   int    `json:"yearEnd"`
	Engine    string `json:"engine,omitempty"`
}

// Part is a sellable automobile part.
type Part struct {
	ID         string           `json:"id"`
	PartNumber string           `json:"partNumber"`
	OEMNumber  string           `json:"oemNumber,omitempty"`
	Name       string           `json:"name"`
	Category   pricing.Category `json:"category"`
	Brand      string           `json:"brand"`
	// UnitPrice is the supplier price in source-currency minor units.
	UnitPrice      int64   `json:"unitPrice"`
	Quantity       int64   `json:"quantity"`
	Genuine        bool    `json:"genuine"`
	WarrantyMonths int     `json:"warrantyMonths"`
	WeightKg       float64 `json:"weightKg"`
}

// BrandFamily returns the part's normalised brand family.
func (p Part) BrandFamily() string {
	return BrandFamily(p.Brand)
}

// Fitment declares that a part fits a vehicle.
type Fitment struct {
	PartID    string `json:"partId"`
	VehicleID string `json:"vehicleId"`
	Note      string `json:"note,omitempty"`
}
