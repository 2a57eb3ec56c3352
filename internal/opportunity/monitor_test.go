package opportunity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/pkg/logging"
)

const groupJID = "120363025746331234@g.us"

type countingClassifier struct {
	calls   int
	last    extraction.ClassifyOptions
	verdict extraction.Classification
	err     error
}

func (c *countingClassifier) ClassifyOpportunity(ctx context.Context, text string, opts extraction.ClassifyOptions) (extraction.Classification, error) {
	c.calls++
	c.last = opts
	return c.verdict, c.err
}

type recordingAlerter struct {
	alerts []Opportunity
}

func (a *recordingAlerter) OpportunityAlert(ctx context.Context, o Opportunity, groupName string) error {
	a.alerts = append(a.alerts, o)
	return nil
}

type recordingPublisher struct {
	published []events.CanonicalEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, aggregate string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) error {
	p.published = append(p.published, evt)
	return nil
}

type monitorFixture struct {
	monitor    *Monitor
	classifier *countingClassifier
	store      *MemoryStore
	alerter    *recordingAlerter
	publisher  *recordingPublisher
	now        time.Time
}

func newMonitorFixture(t *testing.T, group Group) *monitorFixture {
	t.Helper()
	repo := freight.NewMemoryRepository()
	repo.AddLocation(freight.Location{Name: "Uberlandia", Active: true})
	repo.AddLocation(freight.Location{Name: "Santos", Active: true})
	repo.AddLocation(freight.Location{Name: "Antigo Patio", Active: false})

	f := &monitorFixture{
		classifier: &countingClassifier{},
		store:      NewMemoryStore(),
		alerter:    &recordingAlerter{},
		publisher:  &recordingPublisher{},
		now:        time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	f.monitor = NewMonitor(NewMemoryGroupStore(group), repo, f.classifier, f.store,
		WithMinPricePerTon(90),
		WithAlerter(f.alerter),
		WithPublisher(f.publisher),
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func activeGroup(keywords ...string) Group {
	return Group{ID: "grp-1", RemoteID: groupJID, Name: "Fretes Triangulo", Active: true, Keywords: keywords}
}

func str(s string) *string { return &s }

func TestMonitorCreatesOpportunity(t *testing.T) {
	f := newMonitorFixture(t, activeGroup("soja", "milho"))
	tons := 37.0
	f.classifier.verdict = extraction.Classification{
		IsOpportunity: true,
		CargoType:     str("Soja"),
		Origin:        str("Uberlandia"),
		Destination:   str("Santos"),
		Tons:          &tons,
		Priority:      "ALTA",
	}

	err := f.monitor.Process(context.Background(), groupJID, "5534999990000", "Carga de SOJA Uberlandia x Santos 37t, pago 150/t")
	require.NoError(t, err)

	require.Equal(t, 1, f.classifier.calls)
	assert.Equal(t, []string{"soja", "milho"}, f.classifier.last.Keywords)
	assert.Equal(t, []string{"Santos", "Uberlandia"}, f.classifier.last.PreferredRoutes)
	assert.Equal(t, 90.0, f.classifier.last.MinPricePerTon)

	all := f.store.All()
	require.Len(t, all, 1)
	o := all[0]
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, PriorityHigh, o.Priority)
	assert.Equal(t, "5534999990000", o.Contact)
	assert.Equal(t, "grp-1", o.GroupID)
	assert.Equal(t, f.now.Add(48*time.Hour), o.ExpiresAt)

	assert.Len(t, f.alerter.alerts, 1)
	require.Len(t, f.publisher.published, 1)
	evt := f.publisher.published[0].(events.OpportunityDetectedV1)
	assert.Equal(t, "HIGH", evt.Priority)
	assert.Equal(t, groupJID, evt.GroupID)
}

func TestMonitorKeywordPrefilterSkipsOracle(t *testing.T) {
	f := newMonitorFixture(t, activeGroup("soja"))
	f.classifier.verdict = extraction.Classification{IsOpportunity: true}

	require.NoError(t, f.monitor.Process(context.Background(), groupJID, "553400000000", "bom dia pessoal"))

	assert.Equal(t, 0, f.classifier.calls)
	assert.Empty(t, f.store.All())
}

func TestMonitorInactiveGroupNeverCreates(t *testing.T) {
	g := activeGroup("soja")
	g.Active = false
	f := newMonitorFixture(t, g)
	f.classifier.verdict = extraction.Classification{IsOpportunity: true, Priority: "ALTA"}

	require.NoError(t, f.monitor.Process(context.Background(), groupJID, "553400000000", "soja disponivel"))

	assert.Equal(t, 0, f.classifier.calls)
	assert.Empty(t, f.store.All())
}

func TestMonitorUnknownGroupIsSilent(t *testing.T) {
	f := newMonitorFixture(t, activeGroup())
	require.NoError(t, f.monitor.Process(context.Background(), "999@g.us", "553400000000", "frete"))
	assert.Equal(t, 0, f.classifier.calls)
}

func TestMonitorWithoutKeywordsClassifiesEverything(t *testing.T) {
	f := newMonitorFixture(t, activeGroup())
	f.classifier.verdict = extraction.Classification{IsOpportunity: false}

	require.NoError(t, f.monitor.Process(context.Background(), groupJID, "553400000000", "alguem indo pra Santos?"))

	assert.Equal(t, 1, f.classifier.calls)
	assert.Empty(t, f.store.All())
	assert.Empty(t, f.publisher.published)
}

func TestMonitorLowPriorityUsesOracleContactAndSkipsAlert(t *testing.T) {
	f := newMonitorFixture(t, activeGroup())
	f.classifier.verdict = extraction.Classification{IsOpportunity: true, Priority: "URGENTISSIMO", Contact: str(" (34) 99999-1111 ")}

	require.NoError(t, f.monitor.Process(context.Background(), groupJID, "553400000000", "milho 30t"))

	all := f.store.All()
	require.Len(t, all, 1)
	assert.Equal(t, PriorityLow, all[0].Priority)
	assert.Equal(t, "(34) 99999-1111", all[0].Contact)
	assert.Empty(t, f.alerter.alerts)
}

func TestMonitorClassifierErrorIsReturned(t *testing.T) {
	f := newMonitorFixture(t, activeGroup())
	f.classifier.err = errors.New("timeout")

	err := f.monitor.Process(context.Background(), groupJID, "553400000000", "milho 30t")
	assert.Error(t, err)
	assert.Empty(t, f.store.All())
}
