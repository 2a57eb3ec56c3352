package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/pkg/logging"
)

var (
	// ErrUnknownSender is returned when no registered driver owns the number.
	ErrUnknownSender = errors.New("identity: sender not registered")
	// ErrAmbiguousSender is returned when more than one driver matches; callers treat it like unknown.
	ErrAmbiguousSender = errors.New("identity: sender matches multiple drivers")
)

// DriverDirectory lists drivers eligible to use the messaging channel.
type DriverDirectory interface {
	ListMessagingDrivers(ctx context.Context) ([]freight.Driver, error)
}

// Matcher resolves inbound sender addresses to registered drivers.
type Matcher struct {
	drivers DriverDirectory
	logger  *logging.Logger
}

// NewMatcher builds a matcher over the given directory.
func NewMatcher(drivers DriverDirectory, logger *logging.Logger) *Matcher {
	if drivers == nil {
		panic("identity: driver directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Matcher{drivers: drivers, logger: logger}
}

// Match returns the single active, messaging-enabled driver whose phone shares a
// variant with sender.
func (m *Matcher) Match(ctx context.Context, sender string) (freight.Driver, error) {
	if Digits(sender) == "" {
		return freight.Driver{}, ErrUnknownSender
	}
	drivers, err := m.drivers.ListMessagingDrivers(ctx)
	if err != nil {
		return freight.Driver{}, fmt.Errorf("identity: list drivers: %w", err)
	}

	var matches []freight.Driver
	for _, d := range drivers {
		if !d.Active || !d.MessagingEnabled {
			continue
		}
		if SameLine(sender, d.Phone) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return freight.Driver{}, ErrUnknownSender
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, d := range matches {
			ids = append(ids, d.ID)
		}
		m.logger.Warn("sender matches multiple drivers", "sender", Normalize(sender), "driver_ids", ids)
		return freight.Driver{}, ErrAmbiguousSender
	}
}
