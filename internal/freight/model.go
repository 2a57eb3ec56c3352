package freight

import "time"

// Status tracks a freight record through back-office validation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusRejected  Status = "REJECTED"
)

// Source records which channel produced a freight record.
type Source string

const (
	SourceMessaging Source = "WHATSAPP"
	SourceManual    Source = "MANUAL"
)

// Fallback names used when a confirmed draft still lacks a value.
const (
	UnknownLocation = "Desconhecido"
	UnknownCarrier  = "Desconhecida"
	UnknownPlate    = "SEM-PLACA"
)

// Driver is a registered driver allowed to talk to the bot.
type Driver struct {
	ID               string
	Name             string
	Phone            string
	Active           bool
	MessagingEnabled bool
}

// Location is an origin or destination point.
type Location struct {
	ID     string
	Name   string
	City   string
	State  string
	Active bool
}

// Carrier is the company contracting the freight.
type Carrier struct {
	ID     string
	Name   string
	Active bool
}

// Truck is identified by its licence plate.
type Truck struct {
	ID     string
	Plate  string
	Active bool
}

// Freight is a persisted freight record.
type Freight struct {
	ID            string
	Date          time.Time
	OriginID      string
	DestinationID string
	Tons          float64
	PricePerTon   float64
	TotalValue    float64
	CarrierID     string
	TicketNumber  string
	TruckID       string
	DriverID      string
	Note          string
	Status        Status
	Source        Source
	MediaKey      string
	CreatedAt     time.Time
}
