package opportunity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arteita/fretebot/pkg/logging"
)

// ReviewStore is what the review endpoints need from persistence.
type ReviewStore interface {
	ListOpen(ctx context.Context, now time.Time) ([]Opportunity, error)
	UpdateStatus(ctx context.Context, id string, next Status) (Opportunity, error)
}

// GroupAdmin manages the monitored group list.
type GroupAdmin interface {
	ListGroups(ctx context.Context) ([]Group, error)
	Configure(ctx context.Context, remoteID string, active bool, keywords []string) error
}

// AdminHandler exposes opportunity review and group configuration to operators.
type AdminHandler struct {
	reviews ReviewStore
	groups  GroupAdmin
	logger  *logging.Logger
	now     func() time.Time
}

func NewAdminHandler(reviews ReviewStore, groups GroupAdmin, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{reviews: reviews, groups: groups, logger: logger, now: time.Now}
}

type opportunityView struct {
	ID            string   `json:"id"`
	RemoteGroupID string   `json:"group_id"`
	CargoType     string   `json:"cargo_type,omitempty"`
	Origin        string   `json:"origin,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	Tons          *float64 `json:"tons,omitempty"`
	OfferedPrice  *float64 `json:"offered_price,omitempty"`
	Urgency       string   `json:"urgency,omitempty"`
	Contact       string   `json:"contact,omitempty"`
	Priority      Priority `json:"priority"`
	Status        Status   `json:"status"`
	MessageText   string   `json:"message_text"`
	CreatedAt     string   `json:"created_at"`
	ExpiresAt     string   `json:"expires_at"`
}

func toView(o Opportunity) opportunityView {
	return opportunityView{
		ID:            o.ID,
		RemoteGroupID: o.RemoteGroupID,
		CargoType:     o.CargoType,
		Origin:        o.Origin,
		Destination:   o.Destination,
		Tons:          o.Tons,
		OfferedPrice:  o.OfferedPrice,
		Urgency:       o.Urgency,
		Contact:       o.Contact,
		Priority:      o.Priority,
		Status:        o.Status,
		MessageText:   o.MessageText,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		ExpiresAt:     o.ExpiresAt.Format(time.RFC3339),
	}
}

// ListOpen handles GET /admin/opportunities.
func (h *AdminHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		http.Error(w, "Opportunity review not available", http.StatusNotImplemented)
		return
	}
	items, err := h.reviews.ListOpen(r.Context(), h.now())
	if err != nil {
		h.logger.Error("failed to list opportunities", "error", err)
		http.Error(w, "Failed to list opportunities", http.StatusInternalServerError)
		return
	}
	views := make([]opportunityView, 0, len(items))
	for _, o := range items {
		views = append(views, toView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": views})
}

// UpdateStatus handles POST /admin/opportunities/{id}/status.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		http.Error(w, "Opportunity review not available", http.StatusNotImplemented)
		return
	}
	var req struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := h.reviews.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Opportunity not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to update opportunity", "error", err)
		http.Error(w, "Failed to update opportunity", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, toView(updated))
	}
}

type groupView struct {
	ID       string   `json:"id"`
	RemoteID string   `json:"remote_id"`
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
	Keywords []string `json:"keywords"`
}

// ListGroups handles GET /admin/groups.
func (h *AdminHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	if h.groups == nil {
		http.Error(w, "Group management not available", http.StatusNotImplemented)
		return
	}
	groups, err := h.groups.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("failed to list groups", "error", err)
		http.Error(w, "Failed to list groups", http.StatusInternalServerError)
		return
	}
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		kw := g.Keywords
		if kw == nil {
			kw = []string{}
		}
		views = append(views, groupView{ID: g.ID, RemoteID: g.RemoteID, Name: g.Name, Active: g.Active, Keywords: kw})
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": views})
}

// ConfigureGroup handles PUT /admin/groups/{remoteID}.
func (h *AdminHandler) ConfigureGroup(w http.ResponseWriter, r *http.Request) {
	if h.groups == nil {
		http.Error(w, "Group management not available", http.StatusNotImplemented)
		return
	}
	var req struct {
		Active   bool     `json:"active"`
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	err := h.groups.Configure(r.Context(), chi.URLParam(r, "remoteID"), req.Active, req.Keywords)
	switch {
	case errors.Is(err, ErrGroupNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to configure group", "error", err)
		http.Error(w, "Failed to configure group", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
