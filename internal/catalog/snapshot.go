package catalog

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-impor/internal/fitment"
	"github.com/noah-isme/backend-impor/internal/obs"
)

// Snapshot is a materialised, read-only view of the catalog.
type Snapshot struct {
	vehicles map[string]Vehicle
	parts    map[string]Part
	index    *fitment.Index
	loadedAt time.Time
}

// NewSnapshot builds a snapshot from catalog records. Fitments that reference
// unknown parts or vehicles are skipped.
func NewSnapshot(vehicles []Vehicle, parts []Part, fitments []Fitment) *Snapshot {
	s := &Snapshot{
		vehicles: make(map[string]Vehicle, len(vehicles)),
		parts:    make(map[string]Part, len(parts)),
		index:    fitment.New(),
		loadedAt: time.Now(),
	}
	for _, v := range vehicles {
		s.vehicles[v.ID] = v
	}
	for _, p := range parts {
		s.parts[p.ID] = p
	}
	for _, f := range fitments {
		if _, ok := s.parts[f.PartID]; !ok {
			continue
		}
		if _, ok := s.vehicles[f.VehicleID]; !ok {
			continue
		}
		s.index.AddWithNote(f.PartID, f.VehicleID, f.Note)
	}
	return s
}

// Part looks up a part by ID.
func (s *Snapshot) Part(id string) (Part, bool) {
	if s == nil {
		return Part{}, false
	}
	p, ok := s.parts[id]
	return p, ok
}

// Vehicle looks up a vehicle by ID.
func (s *Snapshot) Vehicle(id string) (Vehicle, bool) {
	if s == nil {
		return Vehicle{}, false
	}
	v, ok := s.vehicles[id]
	return v, ok
}

// Quantity returns the on-hand quantity recorded for a part when the snapshot was taken.
func (s *Snapshot) Quantity(partID string) (int64, bool) {
	p, ok := s.Part(partID)
	if !ok {
		return 0, false
	}
	return p.Quantity, true
}

// Fitments exposes the fitment relation.
func (s *Snapshot) Fitments() *fitment.Index {
	if s == nil {
		return fitment.New()
	}
	return s.index
}

// PartsByIDs resolves IDs to parts, skipping unknown ones.
func (s *Snapshot) PartsByIDs(ids []string) []Part {
	out := make([]Part, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.Part(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// VehiclesByIDs resolves IDs to vehicles, skipping unknown ones.
func (s *Snapshot) VehiclesByIDs(ids []string) []Vehicle {
	out := make([]Vehicle, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.Vehicle(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// PartCount returns the number of parts.
func (s *Snapshot) PartCount() int {
	if s == nil {
		return 0
	}
	return len(s.parts)
}

// VehicleCount returns the number of vehicles.
func (s *Snapshot) VehicleCount() int {
	if s == nil {
		return 0
	}
	return len(s.vehicles)
}

// LoadedAt reports when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// SortParts orders parts by ascending unit price, then ID.
func SortParts(parts []Part) {
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].UnitPrice != parts[j].UnitPrice {
			return parts[i].UnitPrice < parts[j].UnitPrice
		}
		return parts[i].ID < parts[j].ID
	})
}

// Loader reads the full catalog from storage.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Store holds the current snapshot and swaps it on refresh.
type Store struct {
	Loader Loader
	Logger zerolog.Logger

	current atomic.Pointer[Snapshot]
}

// NewStore constructs a store seeded with an initial snapshot.
func NewStore(loader Loader, logger zerolog.Logger, initial *Snapshot) *Store {
	st := &Store{Loader: loader, Logger: logger}
	if initial == nil {
		initial = NewSnapshot(nil, nil, nil)
	}
	st.current.Store(initial)
	return st
}

// Current returns the active snapshot.
func (st *Store) Current() *Snapshot {
	if st == nil {
		return nil
	}
	return st.current.Load()
}

// Refresh reloads the catalog and swaps the active snapshot on success.
func (st *Store) Refresh(ctx context.Context) error {
	if st == nil || st.Loader == nil {
		return errors.New("catalog: loader not configured")
	}
	snap, err := st.Loader.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	st.current.Store(snap)
	obs.SetGauge(obs.CatalogSize, float64(snap.PartCount()), "parts")
	obs.SetGauge(obs.CatalogSize, float64(snap.VehicleCount()), "vehicles")
	obs.SetGauge(obs.CatalogSize, float64(snap.Fitments().Len()), "fitments")
	st.Logger.Info().
		Int("parts", snap.PartCount()).
		Int("vehicles", snap.VehicleCount()).
		Int("fitments", snap.Fitments().Len()).
		Time("loaded_at", snap.LoadedAt()).
		Msg("catalog snapshot refreshed")
	return nil
}

// Run refreshes the snapshot every interval until ctx is cancelled.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.Refresh(ctx); err != nil {
				st.Logger.Error().Err(err).Msg("refresh catalog snapshot")
			}
		}
	}
}
