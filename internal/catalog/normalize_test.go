package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/pricing"
)

func TestBrandFamily(t *testing.T) {
	cases := map[string]string{
		"Toyota Genuine Parts": "toyota",
		"TOYOTA":               "toyota",
		"  genuine  OEM Bosch": "bosch",
		"Hyundai-Mobis":        "hyundai",
		"Genuine Parts":        "",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, BrandFamily(in), in)
	}
}

func TestNormalizePartNumber(t *testing.T) {
	assert.Equal(t, "2630035505", NormalizePartNumber("26300-35505"))
	assert.Equal(t, "AB12C", NormalizePartNumber(" ab 12.c "))
}

func validImport() Import {
	return Import{
		Vehicles: []Vehicle{
			{ID: "V1", Make: "Hyundai", Model: " Sonata ", YearStart: 2015, YearEnd: 2019, Engine: "2.0 MPI"},
		},
		Parts: []RawPart{
			{ID: "P1", PartNumber: "26300-35505", Name: "Oil filter", Category: "Filters", Brand: "Hyundai Genuine", UnitPrice: 12000, Quantity: 4, WeightKg: 0.4},
			{ID: "P2", PartNumber: "26300-35504", Name: "Oil filter", Category: "filter", Brand: "Hyundai", UnitPrice: 9000, Quantity: 1, WeightKg: 0.4},
		},
		Fitments: []Fitment{
			{PartID: "P1", VehicleID: "V1"},
			{PartID: "P2", VehicleID: "V1", Note: "up to 2017"},
		},
	}
}

func TestNormalizeImport(t *testing.T) {
	in := validImport()
	in.Parts = append(in.Parts, RawPart{ID: "P3", PartNumber: "X1", Name: "Seat cover", Category: "Upholstery", Brand: "Acme", UnitPrice: 100, WeightKg: 1})
	in.Fitments = append(in.Fitments, Fitment{PartID: "P1", VehicleID: "V1"})

	out, err := NormalizeImport(in)
	require.NoError(t, err)
	require.Len(t, out.Vehicles, 1)
	require.Equal(t, "Sonata", out.Vehicles[0].Model)
	require.Len(t, out.Parts, 3)
	require.Equal(t, pricing.CategoryFilters, out.Parts[0].Category)
	require.Equal(t, "2630035505", out.Parts[0].PartNumber)
	require.Equal(t, pricing.Category("upholstery"), out.Parts[2].Category)
	require.Len(t, out.Fitments, 2)
	require.Len(t, out.Warnings, 2)
}

func TestNormalizeImportDefaultsEmptyCategory(t *testing.T) {
	in := validImport()
	in.Parts[0].Category = ""
	out, err := NormalizeImport(in)
	require.NoError(t, err)
	require.Equal(t, pricing.CategoryOther, out.Parts[0].Category)
	require.Empty(t, out.Warnings)
}

func TestNormalizeImportRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Import)
		target error
	}{
		{"duplicate part number per brand", func(in *Import) {
			in.Parts[1].PartNumber = "2630035505"
			in.Parts[1].Brand = "hyundai genuine"
		}, ErrInvalidRecord},
		{"zero price", func(in *Import) { in.Parts[0].UnitPrice = 0 }, ErrInvalidRecord},
		{"negative quantity", func(in *Import) { in.Parts[0].Quantity = -1 }, ErrInvalidRecord},
		{"weight over limit", func(in *Import) { in.Parts[0].WeightKg = 10000.5 }, ErrInvalidRecord},
		{"missing brand", func(in *Import) { in.Parts[0].Brand = "  " }, ErrInvalidRecord},
		{"bad year range", func(in *Import) { in.Vehicles[0].YearEnd = 2001 }, ErrInvalidRecord},
		{"duplicate vehicle", func(in *Import) { in.Vehicles = append(in.Vehicles, in.Vehicles[0]) }, ErrInvalidRecord},
		{"fitment unknown part", func(in *Import) { in.Fitments[0].PartID = "P9" }, ErrPartNotFound},
		{"fitment unknown vehicle", func(in *Import) { in.Fitments[0].VehicleID = "V9" }, ErrVehicleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validImport()
			tc.mutate(&in)
			_, err := NormalizeImport(in)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.target), err.Error())
		})
	}
}

func TestNormalizeImportSamePartNumberOtherBrand(t *testing.T) {
	in := validImport()
	in.Parts[1].PartNumber = "26300-35505"
	in.Parts[1].Brand = "Bosch"
	_, err := NormalizeImport(in)
	require.NoError(t, err)
}
