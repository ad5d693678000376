package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/config"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

const sampleBatch = `{
  "vehicles": [{"id":"V1","make":"Hyundai","model":"Sonata","yearStart":2018,"yearEnd":2022}],
  "parts": [{"id":"P1","partNumber":"58101-c1a00","name":"Brake pad","category":"Brakes","brand":"hyundai mobis","unitPrice":40000,"quantity":4,"weightKg":1.5}],
  "fitments": [{"partId":"P1","vehicleId":"V1"},{"partId":"P1","vehicleId":"V1"}],
  "rates": {"sourceCurrency":"KRW","destinationCurrency":"XOF","exchangeRate":"0.65","transportBase":"50000","transportPerKg":"1500","customsByCategory":{"brakes":"0.15"},"marginRate":"0.35"}
}`

func TestPrepareNormalisesBatch(t *testing.T) {
	in, err := decodeBatch(strings.NewReader(sampleBatch))
	require.NoError(t, err)
	require.NotNil(t, in.Rates)

	out, err := prepare(in)
	require.NoError(t, err)
	require.Len(t, out.Parts, 1)
	require.Equal(t, "58101C1A00", out.Parts[0].PartNumber)
	require.Equal(t, pricing.CategoryBrakes, out.Parts[0].Category)
	require.Len(t, out.Fitments, 1)
	require.Len(t, out.Warnings, 1)
}

func TestPrepareRejectsBrokenRates(t *testing.T) {
	in, err := decodeBatch(strings.NewReader(sampleBatch))
	require.NoError(t, err)
	in.Rates.DestinationCurrency = "francs"

	_, err = prepare(in)
	require.ErrorIs(t, err, pricing.ErrInvalidInput)
}

func TestPrepareRejectsDanglingFitment(t *testing.T) {
	_, err := prepare(batch{Import: catalog.Import{
		Fitments: []catalog.Fitment{{PartID: "P9", VehicleID: "V1"}},
	}})
	require.ErrorIs(t, err, catalog.ErrPartNotFound)
}

func TestDecodeBatchRejectsUnknownFields(t *testing.T) {
	_, err := decodeBatch(strings.NewReader(`{"products":[]}`))
	require.Error(t, err)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	path := t.TempDir() + "/batch.json"
	require.NoError(t, os.WriteFile(path, []byte(sampleBatch), 0o600))
	err := run(context.Background(), &config.Config{}, options{file: path, dryRun: true}, zerolog.Nop())
	require.NoError(t, err)

	err = run(context.Background(), &config.Config{}, options{}, zerolog.Nop())
	require.EqualError(t, err, "-file is required")
}
