package freight

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no active record.
var ErrNotFound = errors.New("freight: record not found")

// Repository is the persistence collaborator used by the messaging core.
type Repository interface {
	ListMessagingDrivers(ctx context.Context) ([]Driver, error)
	ListActiveLocations(ctx context.Context) ([]Location, error)
	FindOrCreateLocation(ctx context.Context, name string) (Location, error)
	FindOrCreateCarrier(ctx context.Context, name string) (Carrier, error)
	FindOrCreateTruck(ctx context.Context, plate string) (Truck, error)
	CreateFreight(ctx context.Context, f Freight) (Freight, error)
}

// MemoryRepository keeps records in process memory. Used for local runs and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	drivers   map[string]Driver
	locations map[string]Location
	carriers  map[string]Carrier
	trucks    map[string]Truck
	freights  map[string]Freight
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		drivers:   make(map[string]Driver),
		locations: make(map[string]Location),
		carriers:  make(map[string]Carrier),
		trucks:    make(map[string]Truck),
		freights:  make(map[string]Freight),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// AddDriver seeds a driver, assigning an ID when empty.
func (r *MemoryRepository) AddDriver(d Driver) Driver {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.drivers[d.ID] = d
	r.mu.Unlock()
	return d
}

// AddLocation seeds a location, assigning an ID when empty.
func (r *MemoryRepository) AddLocation(l Location) Location {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.locations[l.ID] = l
	r.mu.Unlock()
	return l
}

func (r *MemoryRepository) ListMessagingDrivers(ctx context.Context) ([]Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if d.Active && d.MessagingEnabled {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListActiveLocations(ctx context.Context) ([]Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Location, 0, len(r.locations))
	for _, l := range r.locations {
		if l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) FindOrCreateLocation(ctx context.Context, name string) (Location, error) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locations {
		if l.Active && strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	l := Location{ID: uuid.NewString(), Name: name, Active: true}
	r.locations[l.ID] = l
	return l, nil
}

func (r *MemoryRepository) FindOrCreateCarrier(ctx context.Context, name string) (Carrier, error) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carriers {
		if c.Active && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	c := Carrier{ID: uuid.NewString(), Name: name, Active: true}
	r.carriers[c.ID] = c
	return c, nil
}

func (r *MemoryRepository) FindOrCreateTruck(ctx context.Context, plate string) (Truck, error) {
	plate = strings.TrimSpace(plate)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trucks {
		if t.Active && strings.EqualFold(t.Plate, plate) {
			return t, nil
		}
	}
	t := Truck{ID: uuid.NewString(), Plate: plate, Active: true}
	r.trucks[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) CreateFreight(ctx context.Context, f Freight) (Freight, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.freights[f.ID] = f
	r.mu.Unlock()
	return f, nil
}

// Freights returns every stored freight ordered by creation time.
func (r *MemoryRepository) Freights() []Freight {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Freight, 0, len(r.freights))
	for _, f := range r.freights {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Counts reports how many locations, carriers and trucks exist.
func (r *MemoryRepository) Counts() (locations, carriers, trucks int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations), len(r.carriers), len(r.trucks)
}
