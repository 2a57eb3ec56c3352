package opportunity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long an opportunity stays actionable after detection.
const DefaultTTL = 48 * time.Hour

// Priority ranks an opportunity for the operators.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// MapPriority converts the tier reported by the classifier. Unrecognized
// tiers rank lowest.
func MapPriority(tier string) Priority {
	switch strings.ToUpper(strings.TrimSpace(tier)) {
	case "ALTA", "HIGH":
		return PriorityHigh
	case "MEDIA", "MÉDIA", "MEDIUM":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Status is the review lifecycle of an opportunity.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusInReview  Status = "IN_REVIEW"
	StatusAccepted  Status = "ACCEPTED"
	StatusDiscarded Status = "DISCARDED"
)

// ErrInvalidTransition is returned when a status change skips or reverses the lifecycle.
var ErrInvalidTransition = errors.New("opportunity: invalid status transition")

var allowedTransitions = map[Status][]Status{
	StatusNew:      {StatusInReview, StatusDiscarded},
	StatusInReview: {StatusAccepted, StatusDiscarded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Group is a monitored broadcast group.
type Group struct {
	ID       string
	RemoteID string
	Name     string
	Active   bool
	Keywords []string
}

// Matches reports whether text passes the group's keyword pre-filter. Groups
// without keywords accept everything.
func (g Group) Matches(text string) bool {
	keywords := 0
	lower := strings.ToLower(text)
	for _, kw := range g.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		keywords++
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return keywords == 0
}

// Opportunity is a load offer detected in group traffic.
type Opportunity struct {
	ID            string
	GroupID       string
	RemoteGroupID string
	CargoType     string
	Origin        string
	Destination   string
	Tons          *float64
	OfferedPrice  *float64
	Urgency       string
	Contact       string
	Priority      Priority
	Status        Status
	MessageText   string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Transition moves the opportunity to next, enforcing the lifecycle.
func (o *Opportunity) Transition(next Status) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// Expired reports whether the opportunity is past its expiry at now.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}
