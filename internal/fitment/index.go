package fitment

import (
	"sort"
	"strings"
	"sync"
)

// Pair is one declared part/vehicle compatibility.
type Pair struct {
	PartID    string
	VehicleID string
}

// Index is a many-to-many relation between parts and vehicles. Both lookup
// directions are views of the same relation and change together under one lock,
// so a pair is either visible from both sides or from neither.
type Index struct {
	mu        sync.RWMutex
	notes     map[Pair]string
	byVehicle map[string]map[string]struct{}
	byPart    map[string]map[string]struct{}
}

// IDs are stored trimmed; every lookup trims its arguments the same way.
func pairOf(partID, vehicleID string) Pair {
	return Pair{PartID: strings.TrimSpace(partID), VehicleID: strings.TrimSpace(vehicleID)}
}

// New constructs an empty index.
func New() *Index {
	return &Index{
		notes:     make(map[Pair]string),
		byVehicle: make(map[string]map[string]struct{}),
		byPart:    make(map[string]map[string]struct{}),
	}
}

// Add records that partID fits vehicleID. Adding an existing pair is a no-op and
// keeps the original note. It reports whether the pair was new.
func (x *Index) Add(partID, vehicleID string) bool {
	return x.AddWithNote(partID, vehicleID, "")
}

// AddWithNote is Add with a free-text compatibility note.
func (x *Index) AddWithNote(partID, vehicleID, note string) bool {
	p := pairOf(partID, vehicleID)
	if p.PartID == "" || p.VehicleID == "" {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.notes[p]; ok {
		return false
	}
	x.notes[p] = strings.TrimSpace(note)
	link(x.byVehicle, p.VehicleID, p.PartID)
	link(x.byPart, p.PartID, p.VehicleID)
	return true
}

// Remove deletes the pair. It reports whether the pair existed.
func (x *Index) Remove(partID, vehicleID string) bool {
	p := pairOf(partID, vehicleID)
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.notes[p]; !ok {
		return false
	}
	delete(x.notes, p)
	unlink(x.byVehicle, p.VehicleID, p.PartID)
	unlink(x.byPart, p.PartID, p.VehicleID)
	return true
}

// RemovePart drops every pair that references partID, used when a part is retired.
func (x *Index) RemovePart(partID string) int {
	partID = strings.TrimSpace(partID)
	x.mu.Lock()
	defer x.mu.Unlock()
	vehicles := x.byPart[partID]
	for v := range vehicles {
		delete(x.notes, Pair{PartID: partID, VehicleID: v})
		unlink(x.byVehicle, v, partID)
	}
	delete(x.byPart, partID)
	return len(vehicles)
}

// RemoveVehicle drops every pair that references vehicleID.
func (x *Index) RemoveVehicle(vehicleID string) int {
	vehicleID = strings.TrimSpace(vehicleID)
	x.mu.Lock()
	defer x.mu.Unlock()
	parts := x.byVehicle[vehicleID]
	for p := range parts {
		delete(x.notes, Pair{PartID: p, VehicleID: vehicleID})
		unlink(x.byPart, p, vehicleID)
	}
	delete(x.byVehicle, vehicleID)
	return len(parts)
}

// Has reports whether partID is declared to fit vehicleID.
func (x *Index) Has(partID, vehicleID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.notes[pairOf(partID, vehicleID)]
	return ok
}

// Note returns the compatibility note for the pair, if any.
func (x *Index) Note(partID, vehicleID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.notes[pairOf(partID, vehicleID)]
	return n, ok
}

// PartsForVehicle returns the sorted IDs of parts fitted to vehicleID.
func (x *Index) PartsForVehicle(vehicleID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.byVehicle[strings.TrimSpace(vehicleID)])
}

// VehiclesForPart returns the sorted IDs of vehicles partID fits.
func (x *Index) VehiclesForPart(partID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.byPart[strings.TrimSpace(partID)])
}

// Len returns the number of pairs.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.notes)
}

// Pairs returns every pair ordered by part then vehicle.
func (x *Index) Pairs() []Pair {
	x.mu.RLock()
	out := make([]Pair, 0, len(x.notes))
	for p := range x.notes {
		out = append(out, p)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartID != out[j].PartID {
			return out[i].PartID < out[j].PartID
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

func link(m map[string]map[string]struct{}, from, to string) {
	set, ok := m[from]
	if !ok {
		set = make(map[string]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

func unlink(m map[string]map[string]struct{}, from, to string) {
	set, ok := m[from]
	if !ok {
		return
	}
	delete(set, to)
	if len(set) == 0 {
		delete(m, from)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
