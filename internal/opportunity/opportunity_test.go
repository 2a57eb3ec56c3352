package opportunity

import (
	"errors"
	"testing"
	"time"
)

func TestMapPriority(t *testing.T) {
	cases := map[string]Priority{
		"ALTA":    PriorityHigh,
		" high ":  PriorityHigh,
		"media":   PriorityMedium,
		"MÉDIA":   PriorityMedium,
		"MEDIUM":  PriorityMedium,
		"BAIXA":   PriorityLow,
		"":        PriorityLow,
		"urgente": PriorityLow,
	}
	for in, want := range cases {
		if got := MapPriority(in); got != want {
			t.Fatalf("MapPriority(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestOpportunityTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"review", StatusNew, StatusInReview, true},
		{"discard new", StatusNew, StatusDiscarded, true},
		{"accept reviewed", StatusInReview, StatusAccepted, true},
		{"discard reviewed", StatusInReview, StatusDiscarded, true},
		{"skip review", StatusNew, StatusAccepted, false},
		{"reopen", StatusAccepted, StatusNew, false},
		{"after discard", StatusDiscarded, StatusInReview, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := Opportunity{Status: tc.from}
			err := o.Transition(tc.to)
			if tc.ok {
				if err != nil || o.Status != tc.to {
					t.Fatalf("expected transition, got status=%s err=%v", o.Status, err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if o.Status != tc.from {
				t.Fatalf("status must not change on rejected transition")
			}
		})
	}
}

func TestGroupMatches(t *testing.T) {
	g := Group{Keywords: []string{" Soja ", "", "milho"}}
	if !g.Matches("Carga de SOJA disponivel") {
		t.Fatal("expected case-insensitive keyword match")
	}
	if g.Matches("bom dia") {
		t.Fatal("expected no match")
	}
	if !(Group{Keywords: []string{" "}}).Matches("qualquer coisa") {
		t.Fatal("blank keywords should not filter")
	}
}

func TestOpportunityExpired(t *testing.T) {
	created := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	o := Opportunity{CreatedAt: created, ExpiresAt: created.Add(DefaultTTL)}
	if o.Expired(created.Add(47 * time.Hour)) {
		t.Fatal("should still be open")
	}
	if !o.Expired(created.Add(49 * time.Hour)) {
		t.Fatal("should be expired")
	}
}
