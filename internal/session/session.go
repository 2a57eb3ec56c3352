package session

import (
	"context"
	"errors"
	"time"

	"github.com/arteita/fretebot/internal/freight"
)

// State is a conversation state.
type State string

const (
	StateIdle                  State = "IDLE"
	StateAwaitingTicket        State = "AWAITING_TICKET"
	StateAwaitingConfirmation  State = "AWAITING_CONFIRMATION"
	StateAwaitingMissingFields State = "AWAITING_MISSING_FIELDS"
)

// ErrNotFound is returned by Get when the sender has no live session.
var ErrNotFound = errors.New("session: not found")

// Session is the per-sender conversation state.
type Session struct {
	State        State           `json:"state"`
	Draft        freight.Draft   `json:"draft"`
	Missing      []freight.Field `json:"missing,omitempty"`
	LastActivity time.Time       `json:"last_activity"`
	DriverID     string          `json:"driver_id"`
	DriverName   string          `json:"driver_name"`
	// Ticket points at the media the draft was read from. It is archived
	// only once the driver confirms.
	Ticket *TicketMedia `json:"ticket,omitempty"`
}

// TicketMedia identifies received ticket media on the messaging backend.
type TicketMedia struct {
	Ref       string `json:"ref"`
	MediaType string `json:"media_type,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Expired reports whether the session has been idle longer than idle at now.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	if s == nil || idle <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) > idle
}

// Reset drops the draft and returns the session to IDLE.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Draft = freight.Draft{}
	s.Missing = nil
	s.Ticket = nil
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Missing != nil {
		cp.Missing = append([]freight.Field(nil), s.Missing...)
	}
	if s.Ticket != nil {
		t := *s.Ticket
		cp.Ticket = &t
	}
	return &cp
}

// Store persists sessions keyed by canonical sender address.
type Store interface {
	Get(ctx context.Context, key string) (*Session, error)
	Put(ctx context.Context, key string, s *Session) error
	Delete(ctx context.Context, key string) error
	// Sweep removes every session whose last activity is before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
