package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	httpmiddleware "github.com/arteita/fretebot/internal/http/middleware"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/opportunity"
	"github.com/arteita/fretebot/pkg/logging"
)

const testSecret = "router-test-secret"

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, messaging.Inbound) error { return nil }

type stubGroups struct {
	groups []opportunity.Group
}

func (s *stubGroups) ListGroups(context.Context) ([]opportunity.Group, error) {
	return s.groups, nil
}

func (s *stubGroups) Configure(context.Context, string, bool, []string) error { return nil }

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	logger := logging.Discard()
	gateway := messaging.NewGateway(messaging.NewConfigCache(nil, messaging.ProviderConfig{}, time.Minute, logger), logger)
	groups := &stubGroups{groups: []opportunity.Group{{ID: "g1", RemoteID: "120363@g.us", Name: "Fretes MG", Active: true}}}

	cfg := &Config{
		Logger:          logger,
		Webhook:         messaging.NewWebhookHandler(messaging.WebhookHandlerConfig{Dispatcher: noopDispatcher{}, Logger: logger}),
		WhatsAppAdmin:   messaging.NewAdminHandler(gateway, nil, logger),
		Opportunities:   opportunity.NewAdminHandler(nil, groups, logger),
		AdminAuthSecret: testSecret,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func signToken(t *testing.T, role string) string {
	t.Helper()
	claims := httpmiddleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@fretes.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterHealthReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.HealthChecks = map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rr := serve(router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	if resp.Checks["postgres"] != "ok" || resp.Checks["redis"] != "connection refused" {
		t.Errorf("unexpected checks: %v", resp.Checks)
	}
}

func TestRouterWebhookRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, WebhookPath, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"OK"`) {
		t.Fatalf("expected probe OK, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodPost, WebhookPath, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on receive, got %d", rr.Code)
	}
}

func TestRouterWebhookRateLimited(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.WebhookLimiter = httpmiddleware.NewRateLimiter(1, 1)
	})

	if rr := serve(router, http.MethodPost, WebhookPath, ""); rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodPost, WebhookPath, ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be throttled, got %d", rr.Code)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	if rr := serve(router, http.MethodGet, "/admin/groups", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr := serve(router, http.MethodGet, "/admin/groups", signToken(t, "operator"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Fretes MG") {
		t.Errorf("expected group in body, got %s", rr.Body.String())
	}
}

func TestRouterInstanceActionRequiresAdminRole(t *testing.T) {
	router := newTestRouter(t, nil)
	path := "/admin/whatsapp/configs/cfg-1/instance"

	if rr := serve(router, http.MethodPost, path, signToken(t, "operator")); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rr.Code)
	}
	// no instance manager is wired in the test router
	if rr := serve(router, http.MethodPost, path, signToken(t, "admin")); rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected admin to reach the handler, got %d", rr.Code)
	}
}

func TestRouterAdminNotMountedWithoutSecret(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) { cfg.AdminAuthSecret = "" })

	if rr := serve(router, http.MethodGet, "/admin/whatsapp/status", signToken(t, "admin")); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
