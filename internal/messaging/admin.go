package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/arteita/fretebot/pkg/logging"
)

// Instance actions accepted by InstanceAction.
const (
	ActionCreate         = "create"
	ActionConnect        = "connect"
	ActionStatus         = "status"
	ActionRestart        = "restart"
	ActionLogout         = "logout"
	ActionDelete         = "delete"
	ActionSetWebhook     = "set-webhook"
	ActionGetWebhook     = "get-webhook"
	ActionFetchInstances = "fetch-instances"
	ActionFetchGroups    = "fetch-groups"
)

// WebhookPath is where backends deliver events.
const WebhookPath = "/api/webhook/whatsapp"

// InstanceConfigStore loads self-hosted configs by id and records session state.
type InstanceConfigStore interface {
	EvolutionConfigByID(ctx context.Context, id string) (EvolutionConfig, error)
	SetConnected(ctx context.Context, id string, connected bool) error
}

// InstanceManager runs self-hosted instance lifecycle actions and keeps the
// stored connected flag and the gateway cache in step.
type InstanceManager struct {
	store         InstanceConfigStore
	gateway       *Gateway
	newClient     func(EvolutionConfig) *EvolutionClient
	publicBaseURL string
	logger        *logging.Logger
}

// NewInstanceManager builds a manager. publicBaseURL is the default webhook host.
func NewInstanceManager(store InstanceConfigStore, gateway *Gateway, publicBaseURL string, logger *logging.Logger) *InstanceManager {
	if logger == nil {
		logger = logging.Default()
	}
	return &InstanceManager{
		store:         store,
		gateway:       gateway,
		newClient:     func(cfg EvolutionConfig) *EvolutionClient { return NewEvolutionClient(cfg, nil) },
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// InstanceRequest is the body of an instance action.
type InstanceRequest struct {
	Action     string `json:"action"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// InstanceResult is the action outcome returned to operators.
type InstanceResult struct {
	Success    bool            `json:"success"`
	Connected  *bool           `json:"connected,omitempty"`
	State      string          `json:"state,omitempty"`
	Pairing    *PairingCode    `json:"pairing,omitempty"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	Groups     []GroupInfo     `json:"groups,omitempty"`
	Raw        json.RawMessage `json:"data,omitempty"`
}

// ErrUnknownAction is returned for actions outside the supported set.
var ErrUnknownAction = errors.New("messaging: unknown instance action")

// Run executes one action against the config identified by id.
func (m *InstanceManager) Run(ctx context.Context, id string, req InstanceRequest) (InstanceResult, error) {
	if m.store == nil {
		return InstanceResult{}, errors.New("messaging: instance actions need a config store")
	}
	cfg, err := m.store.EvolutionConfigByID(ctx, id)
	if err != nil {
		return InstanceResult{}, err
	}
	client := m.newClient(cfg)

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case ActionCreate:
		raw, err := client.CreateInstance(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		m.markConnected(ctx, id, false)
		return InstanceResult{Success: true, Raw: raw}, nil

	case ActionConnect:
		code, err := client.Connect(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		m.invalidate()
		return InstanceResult{Success: true, Pairing: code}, nil

	case ActionStatus:
		state, err := client.ConnectionState(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		connected := state == EvolutionStateOpen
		if err := m.store.SetConnected(ctx, id, connected); err != nil {
			m.logger.Warn("failed to persist connected flag", "config_id", id, "error", err)
		}
		return InstanceResult{Success: true, State: state, Connected: &connected}, nil

	case ActionRestart:
		if err := client.RestartInstance(ctx); err != nil {
			return InstanceResult{}, err
		}
		m.invalidate()
		return InstanceResult{Success: true}, nil

	case ActionLogout:
		if err := client.LogoutInstance(ctx); err != nil {
			return InstanceResult{}, err
		}
		m.markConnected(ctx, id, false)
		return InstanceResult{Success: true}, nil

	case ActionDelete:
		if err := client.DeleteInstance(ctx); err != nil {
			return InstanceResult{}, err
		}
		m.markConnected(ctx, id, false)
		return InstanceResult{Success: true}, nil

	case ActionSetWebhook:
		base := firstNonBlank(req.WebhookURL, m.publicBaseURL, "http://localhost:8080")
		webhookURL := strings.TrimRight(base, "/") + WebhookPath
		if err := client.SetWebhook(ctx, webhookURL, WebhookEvents); err != nil {
			return InstanceResult{}, err
		}
		m.invalidate()
		return InstanceResult{Success: true, WebhookURL: webhookURL}, nil

	case ActionGetWebhook:
		raw, err := client.FindWebhook(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		return InstanceResult{Success: true, Raw: raw}, nil

	case ActionFetchInstances:
		raw, err := client.FetchInstances(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		return InstanceResult{Success: true, Raw: raw}, nil

	case ActionFetchGroups:
		groups, err := client.FetchGroups(ctx)
		if err != nil {
			return InstanceResult{}, err
		}
		return InstanceResult{Success: true, Groups: groups}, nil

	default:
		return InstanceResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

func (m *InstanceManager) markConnected(ctx context.Context, id string, connected bool) {
	if err := m.store.SetConnected(ctx, id, connected); err != nil {
		m.logger.Warn("failed to persist connected flag", "config_id", id, "error", err)
	}
	m.invalidate()
}

func (m *InstanceManager) invalidate() {
	if m.gateway != nil {
		m.gateway.Invalidate()
	}
}

// AdminHandler exposes gateway status and instance management to operators.
type AdminHandler struct {
	gateway   *Gateway
	instances *InstanceManager
	logger    *logging.Logger
}

// NewAdminHandler builds the handler. instances may be nil when configs only
// come from the environment.
func NewAdminHandler(gateway *Gateway, instances *InstanceManager, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{gateway: gateway, instances: instances, logger: logger}
}

// Status handles GET /admin/whatsapp/status.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Status(r.Context()))
}

// PairingCode handles GET /admin/whatsapp/pairing-code.
func (h *AdminHandler) PairingCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.gateway.PairingCode(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch pairing code", "error", err)
		http.Error(w, "Failed to fetch pairing code", http.StatusBadGateway)
		return
	}
	if code == nil {
		http.Error(w, "Self-hosted backend not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

// InvalidateCache handles POST /admin/whatsapp/cache/invalidate.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.gateway.Invalidate()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// InstanceAction handles POST /admin/whatsapp/configs/{id}/instance.
func (h *AdminHandler) InstanceAction(w http.ResponseWriter, r *http.Request) {
	if h.instances == nil {
		http.Error(w, "Instance management not available", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	var req InstanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.instances.Run(r.Context(), id, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrConfigNotFound):
		http.Error(w, "Config not found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownAction):
		http.Error(w, "Unknown action", http.StatusBadRequest)
	default:
		h.logger.Error("instance action failed", "error", err, "config_id", id, "action", req.Action)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
	}
}
