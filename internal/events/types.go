package events

import "time"

const (
	TypeFreightRegistered   = "freight.registered.v1"
	TypeOpportunityDetected = "opportunity.detected.v1"
)

// FreightRegisteredV1 is emitted after a driver confirms a freight over chat.
type FreightRegisteredV1 struct {
	FreightID     string    `json:"freight_id"`
	DriverID      string    `json:"driver_id"`
	TicketNumber  string    `json:"ticket_number"`
	OriginID      string    `json:"origin_id"`
	DestinationID string    `json:"destination_id"`
	Tons          float64   `json:"tons"`
	TotalValue    float64   `json:"total_value"`
	MediaKey      string    `json:"media_key,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
}

func (FreightRegisteredV1) EventType() string { return TypeFreightRegistered }

// OpportunityDetectedV1 is emitted when a group broadcast is classified as a load offer.
type OpportunityDetectedV1 struct {
	OpportunityID string    `json:"opportunity_id"`
	GroupID       string    `json:"group_id"`
	CargoType     string    `json:"cargo_type,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	Tons          *float64  `json:"tons,omitempty"`
	OfferedPrice  *float64  `json:"offered_price,omitempty"`
	Priority      string    `json:"priority"`
	Contact       string    `json:"contact,omitempty"`
	DetectedAt    time.Time `json:"detected_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (OpportunityDetectedV1) EventType() string { return TypeOpportunityDetected }
