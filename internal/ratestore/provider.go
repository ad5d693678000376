package ratestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-impor/internal/cache"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

// Reader is the read side of snapshot storage.
type Reader interface {
	Latest(ctx context.Context) (*pricing.RateSnapshot, error)
	ByVersion(ctx context.Context, version int64) (*pricing.RateSnapshot, error)
}

// Writer appends snapshots.
type Writer interface {
	Append(ctx context.Context, snap *pricing.RateSnapshot) (int64, error)
}

// Provider hands out rate snapshots to pricing callers. The latest snapshot is
// cached for a short TTL; historical versions never change and are cached
// without expiry.
type Provider struct {
	reader          Reader
	writer          Writer
	cache           *cache.JSON
	offlineFallback bool
	logger          zerolog.Logger
}

// ProviderConfig groups Provider dependencies.
type ProviderConfig struct {
	Reader Reader
	Writer Writer
	Cache  *cache.JSON
	// OfflineFallback allows the built-in snapshot when storage has none. It is
	// meant for first runs and offline development only.
	OfflineFallback bool
	Logger          zerolog.Logger
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		reader:          cfg.Reader,
		writer:          cfg.Writer,
		cache:           cfg.Cache,
		offlineFallback: cfg.OfflineFallback,
		logger:          cfg.Logger,
	}
}

// Latest returns the snapshot new quotes bind to. A missing snapshot surfaces
// as pricing.ErrRateSnapshotMissing unless the offline fallback is enabled.
func (p *Provider) Latest(ctx context.Context) (*pricing.RateSnapshot, error) {
	var cached pricing.RateSnapshot
	if ok, err := p.cache.Get(ctx, cache.KeyLatestRates(), &cached); err != nil {
		p.logger.Warn().Err(err).Msg("rate cache read failed")
	} else if ok {
		return &cached, nil
	}

	snap, err := p.loadLatest(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", pricing.ErrRateSnapshotMissing, err)
		}
		if !p.offlineFallback {
			return nil, fmt.Errorf("%w: no snapshot stored", pricing.ErrRateSnapshotMissing)
		}
		p.logger.Warn().Msg("no stored rate snapshot, using built-in offline snapshot")
		return pricing.OfflineSnapshot(), nil
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: snapshot v%d: %v", pricing.ErrRateSnapshotMissing, snap.Version, err)
	}
	if obs.RateSnapshotVersion != nil {
		obs.RateSnapshotVersion.Set(float64(snap.Version))
	}
	if err := p.cache.Set(ctx, cache.KeyLatestRates(), snap); err != nil {
		p.logger.Warn().Err(err).Msg("rate cache write failed")
	}
	return snap, nil
}

func (p *Provider) loadLatest(ctx context.Context) (*pricing.RateSnapshot, error) {
	if p.reader == nil {
		return nil, ErrNotFound
	}
	return p.reader.Latest(ctx)
}

// ByVersion returns a historical snapshot. Version 0 is the built-in offline
// snapshot and is only served when the offline fallback is enabled.
func (p *Provider) ByVersion(ctx context.Context, version int64) (*pricing.RateSnapshot, error) {
	if version == 0 && p.offlineFallback {
		return pricing.OfflineSnapshot(), nil
	}
	key := cache.KeyRatesVersion(version)
	var cached pricing.RateSnapshot
	if ok, err := p.cache.Get(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}
	if p.reader == nil {
		return nil, fmt.Errorf("%w: version %d", pricing.ErrRateSnapshotMissing, version)
	}
	snap, err := p.reader.ByVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %d: %v", pricing.ErrRateSnapshotMissing, version, err)
	}
	if err := p.cache.SetTTL(ctx, key, snap, 0); err != nil {
		p.logger.Warn().Err(err).Int64("version", version).Msg("rate cache write failed")
	}
	return snap, nil
}

// Append stores a new snapshot and drops the cached latest one.
func (p *Provider) Append(ctx context.Context, snap *pricing.RateSnapshot) (int64, error) {
	if p.writer == nil {
		return 0, errors.New("ratestore: writer not configured")
	}
	version, err := p.writer.Append(ctx, snap)
	if err != nil {
		return 0, err
	}
	if err := p.cache.Delete(ctx, cache.KeyLatestRates()); err != nil {
		p.logger.Warn().Err(err).Msg("rate cache invalidation failed")
	}
	p.logger.Info().Int64("version", version).Msg("rate snapshot appended")
	return version, nil
}
