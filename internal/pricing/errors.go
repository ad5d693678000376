package pricing

import "errors"

var (
	// ErrInvalidInput is returned for malformed prices, weights or currency codes.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateSnapshotMissing is returned when no rate snapshot is available to bind a quote to.
	ErrRateSnapshotMissing = errors.New("rate snapshot missing")
)
