// Command importer loads a supplier catalog batch (and optionally a new rate
// snapshot) into Postgres.
//
//	go run ./cmd/tools/importer -file catalog.json [-dry-run] [-migrate]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/config"
	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/migrations"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/pricing"
	"github.com/noah-isme/backend-impor/internal/ratestore"
)

// batch is the on-disk import format.
type batch struct {
	catalog.Import
	Rates *pricing.RateSnapshot `json:"rates,omitempty"`
}

type options struct {
	file    string
	dryRun  bool
	migrate bool
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "path to the JSON batch (vehicles, parts, fitments, optional rates)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "validate the batch without writing it")
	flag.BoolVar(&opts.migrate, "migrate", false, "apply pending migrations first")
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("tool", "importer").Logger()

	if err := run(context.Background(), cfg, opts, logger); err != nil {
		logger.Fatal().Err(err).Msg("import failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	if opts.file == "" {
		return errors.New("-file is required")
	}
	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	in, err := decodeBatch(f)
	if err != nil {
		return err
	}
	normalized, err := prepare(in)
	if err != nil {
		return err
	}
	for _, w := range normalized.Warnings {
		logger.Warn().Msg(w)
	}
	logger.Info().
		Int("vehicles", len(normalized.Vehicles)).
		Int("parts", len(normalized.Parts)).
		Int("fitments", len(normalized.Fitments)).
		Bool("rates", in.Rates != nil).
		Msg("batch validated")
	if opts.dryRun {
		return nil
	}

	if opts.migrate {
		if _, err := migrations.Up(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	bus := &events.Bus{Store: events.NewPgStore(pool), Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}

	if err := catalog.NewRepository(pool).Upsert(ctx, normalized); err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}
	if _, err := bus.Emit(ctx, events.TopicCatalogImported, opts.file, map[string]int{
		"vehicles": len(normalized.Vehicles),
		"parts":    len(normalized.Parts),
		"fitments": len(normalized.Fitments),
		"warnings": len(normalized.Warnings),
	}); err != nil {
		logger.Warn().Err(err).Msg("catalog event not recorded")
	}

	if in.Rates != nil {
		provider := ratestore.NewProvider(ratestore.ProviderConfig{Writer: ratestore.NewRepository(pool), Logger: logger})
		version, err := provider.Append(ctx, in.Rates)
		if err != nil {
			return fmt.Errorf("append rate snapshot: %w", err)
		}
		if _, err := bus.Emit(ctx, events.TopicRatesAppended, fmt.Sprint(version), map[string]any{
			"version":       version,
			"effectiveFrom": in.Rates.EffectiveFrom,
		}); err != nil {
			logger.Warn().Err(err).Msg("rates event not recorded")
		}
	}
	return nil
}

func decodeBatch(r io.Reader) (batch, error) {
	var in batch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return batch{}, fmt.Errorf("decode batch: %w", err)
	}
	return in, nil
}

// prepare normalises the catalog part and validates the optional snapshot so
// nothing is written when either half is broken.
func prepare(in batch) (catalog.Normalized, error) {
	normalized, err := catalog.NormalizeImport(in.Import)
	if err != nil {
		return catalog.Normalized{}, err
	}
	if in.Rates != nil {
		if err := in.Rates.Validate(); err != nil {
			return catalog.Normalized{}, fmt.Errorf("rates: %w", err)
		}
	}
	return normalized, nil
}
