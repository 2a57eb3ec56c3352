package freight

import (
	"context"
	"fmt"
	"time"
)

// Registration is a confirmed draft ready to be persisted.
type Registration struct {
	Draft    Draft
	DriverID string
	MediaKey string
}

// Registrar resolves the referenced records and writes the freight.
type Registrar struct {
	repo Repository
	now  func() time.Time
}

// NewRegistrar builds a registrar over the given repository.
func NewRegistrar(repo Repository) *Registrar {
	if repo == nil {
		panic("freight: repository required")
	}
	return &Registrar{repo: repo, now: time.Now}
}

// Register finds or creates the origin, destination, carrier and truck
// (case-insensitive exact match on active records) and creates a PENDING
// freight attributed to the messaging channel.
func (r *Registrar) Register(ctx context.Context, reg Registration) (Freight, error) {
	d := reg.Draft
	origin, err := r.repo.FindOrCreateLocation(ctx, orDefault(d.Origin, UnknownLocation))
	if err != nil {
		return Freight{}, fmt.Errorf("freight: resolve origin: %w", err)
	}
	destination, err := r.repo.FindOrCreateLocation(ctx, orDefault(d.Destination, UnknownLocation))
	if err != nil {
		return Freight{}, fmt.Errorf("freight: resolve destination: %w", err)
	}
	carrier, err := r.repo.FindOrCreateCarrier(ctx, orDefault(d.Carrier, UnknownCarrier))
	if err != nil {
		return Freight{}, fmt.Errorf("freight: resolve carrier: %w", err)
	}
	truck, err := r.repo.FindOrCreateTruck(ctx, orDefault(d.Plate, UnknownPlate))
	if err != nil {
		return Freight{}, fmt.Errorf("freight: resolve truck: %w", err)
	}

	now := r.now().UTC()
	date := now
	if d.Date != nil {
		if parsed, ok := ParseDate(*d.Date); ok {
			date = parsed
		}
	}
	d.DeriveTotal()

	record := Freight{
		Date:          date,
		OriginID:      origin.ID,
		DestinationID: destination.ID,
		Tons:          floatOrZero(d.Tons),
		PricePerTon:   floatOrZero(d.PricePerTon),
		TotalValue:    floatOrZero(d.TotalValue),
		CarrierID:     carrier.ID,
		TicketNumber:  orDefault(d.TicketNumber, fmt.Sprintf("WA-%d", now.UnixMilli())),
		TruckID:       truck.ID,
		DriverID:      reg.DriverID,
		Note:          deref(d.Note),
		Status:        StatusPending,
		Source:        SourceMessaging,
		MediaKey:      reg.MediaKey,
		CreatedAt:     now,
	}
	created, err := r.repo.CreateFreight(ctx, record)
	if err != nil {
		return Freight{}, fmt.Errorf("freight: create: %w", err)
	}
	return created, nil
}

func orDefault(s *string, fallback string) string {
	if v := deref(s); v != "" {
		return v
	}
	return fallback
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
