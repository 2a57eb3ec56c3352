package opportunity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

// ErrGroupNotFound is returned by GroupStore lookups with no match.
var ErrGroupNotFound = errors.New("opportunity: group not found")

// GroupStore looks up monitored groups.
type GroupStore interface {
	GroupByRemoteID(ctx context.Context, remoteID string) (Group, error)
}

// LocationSource lists the known locations used as preferred routes.
type LocationSource interface {
	ListActiveLocations(ctx context.Context) ([]freight.Location, error)
}

// Classifier decides whether a group message is a freight offer.
type Classifier interface {
	ClassifyOpportunity(ctx context.Context, text string, opts extraction.ClassifyOptions) (extraction.Classification, error)
}

// Store persists detected opportunities.
type Store interface {
	CreateOpportunity(ctx context.Context, o Opportunity) (Opportunity, error)
}

// Alerter tells operators about high-priority opportunities.
type Alerter interface {
	OpportunityAlert(ctx context.Context, o Opportunity, groupName string) error
}

// Monitor classifies broadcast-group messages into opportunities. It never
// writes back to the group.
type Monitor struct {
	groups         GroupStore
	locations      LocationSource
	classifier     Classifier
	store          Store
	alerter        Alerter
	publisher      events.Publisher
	logger         *logging.Logger
	metrics        *metrics.Metrics
	minPricePerTon float64
	ttl            time.Duration
	now            func() time.Time
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

func WithMinPricePerTon(p float64) MonitorOption     { return func(m *Monitor) { m.minPricePerTon = p } }
func WithAlerter(a Alerter) MonitorOption            { return func(m *Monitor) { m.alerter = a } }
func WithPublisher(p events.Publisher) MonitorOption { return func(m *Monitor) { m.publisher = p } }
func WithLogger(l *logging.Logger) MonitorOption     { return func(m *Monitor) { m.logger = l } }
func WithMetrics(mt *metrics.Metrics) MonitorOption  { return func(m *Monitor) { m.metrics = mt } }
func WithClock(now func() time.Time) MonitorOption   { return func(m *Monitor) { m.now = now } }

// NewMonitor wires the monitor to its collaborators.
func NewMonitor(groups GroupStore, locations LocationSource, classifier Classifier, store Store, opts ...MonitorOption) *Monitor {
	if groups == nil || locations == nil || classifier == nil || store == nil {
		panic("opportunity: groups, locations, classifier and store are required")
	}
	m := &Monitor{
		groups:     groups,
		locations:  locations,
		classifier: classifier,
		store:      store,
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	return m
}

// Process handles one group message. Messages that are filtered out or not
// classified as offers return nil without side effects.
func (m *Monitor) Process(ctx context.Context, groupID, sender, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	group, err := m.groups.GroupByRemoteID(ctx, groupID)
	if errors.Is(err, ErrGroupNotFound) {
		m.metrics.ObserveDropped("unmonitored_group")
		return nil
	}
	if err != nil {
		return fmt.Errorf("opportunity: lookup group: %w", err)
	}
	if !group.Active {
		m.metrics.ObserveDropped("inactive_group")
		return nil
	}
	if !group.Matches(text) {
		m.metrics.ObserveDropped("no_keyword")
		return nil
	}

	locations, err := m.locations.ListActiveLocations(ctx)
	if err != nil {
		return fmt.Errorf("opportunity: list locations: %w", err)
	}
	routes := make([]string, 0, len(locations))
	for _, l := range locations {
		routes = append(routes, l.Name)
	}

	verdict, err := m.classifier.ClassifyOpportunity(ctx, text, extraction.ClassifyOptions{
		Keywords:        group.Keywords,
		PreferredRoutes: routes,
		MinPricePerTon:  m.minPricePerTon,
	})
	if err != nil {
		return fmt.Errorf("opportunity: classify: %w", err)
	}
	if !verdict.IsOpportunity {
		m.metrics.ObserveDropped("not_opportunity")
		return nil
	}

	now := m.now().UTC()
	contact := strings.TrimSpace(deref(verdict.Contact))
	if contact == "" {
		contact = sender
	}
	created, err := m.store.CreateOpportunity(ctx, Opportunity{
		GroupID:       group.ID,
		RemoteGroupID: group.RemoteID,
		CargoType:     deref(verdict.CargoType),
		Origin:        deref(verdict.Origin),
		Destination:   deref(verdict.Destination),
		Tons:          verdict.Tons,
		OfferedPrice:  verdict.OfferedPrice,
		Urgency:       deref(verdict.Urgency),
		Contact:       contact,
		Priority:      MapPriority(verdict.Priority),
		Status:        StatusNew,
		MessageText:   text,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	})
	if err != nil {
		return fmt.Errorf("opportunity: create: %w", err)
	}
	m.metrics.ObserveOpportunity(string(created.Priority))
	m.logger.Info("opportunity detected",
		"opportunity_id", created.ID,
		"group", group.Name,
		"priority", created.Priority,
		"origin", created.Origin,
		"destination", created.Destination,
	)

	m.publish(ctx, created)
	if created.Priority == PriorityHigh && m.alerter != nil {
		if err := m.alerter.OpportunityAlert(ctx, created, group.Name); err != nil {
			m.logger.Warn("opportunity alert failed", "opportunity_id", created.ID, "error", err)
		}
	}
	return nil
}

func (m *Monitor) publish(ctx context.Context, o Opportunity) {
	if m.publisher == nil {
		return
	}
	evt := events.OpportunityDetectedV1{
		OpportunityID: o.ID,
		GroupID:       o.RemoteGroupID,
		CargoType:     o.CargoType,
		Origin:        o.Origin,
		Destination:   o.Destination,
		Tons:          o.Tons,
		OfferedPrice:  o.OfferedPrice,
		Priority:      string(o.Priority),
		Contact:       o.Contact,
		DetectedAt:    o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
	}
	if err := m.publisher.Publish(ctx, "opportunity:"+o.ID, evt); err != nil {
		m.logger.Warn("failed to publish opportunity event", "opportunity_id", o.ID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
