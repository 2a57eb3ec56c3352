package messaging

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

var webhookTracer = otel.Tracer("fretebot.internal.messaging.webhook")

const maxWebhookBody = 4 << 20

// Dispatcher accepts normalized inbound messages for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, in Inbound) error
}

// VerifyTokenSource lists the verify tokens of active official configs.
type VerifyTokenSource interface {
	VerifyTokens(ctx context.Context) ([]string, error)
}

// WebhookHandler serves the shared webhook endpoint of both backends.
type WebhookHandler struct {
	dispatcher   Dispatcher
	cache        *ConfigCache
	tokens       VerifyTokenSource
	envToken     string
	logger       *logging.Logger
	metrics      *metrics.Metrics
	dispatchWait time.Duration
}

// WebhookHandlerConfig wires a WebhookHandler.
type WebhookHandlerConfig struct {
	Dispatcher Dispatcher
	// Cache supplies the official app secret for signature checks.
	Cache *ConfigCache
	// Tokens may be nil when configs only come from the environment.
	Tokens VerifyTokenSource
	// VerifyToken is the process-wide verify token override.
	VerifyToken string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
}

// NewWebhookHandler builds the handler.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Dispatcher == nil {
		panic("messaging: dispatcher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		dispatcher:   cfg.Dispatcher,
		cache:        cfg.Cache,
		tokens:       cfg.Tokens,
		envToken:     cfg.VerifyToken,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		dispatchWait: 3 * time.Second,
	}
}

// Verify handles GET: a bare health probe, or the official subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" && token == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		return
	}
	if mode != "subscribe" || token == "" || challenge == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !h.tokenAccepted(r.Context(), token) {
		h.logger.Warn("webhook verification rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (h *WebhookHandler) tokenAccepted(ctx context.Context, token string) bool {
	if h.tokens != nil {
		tokens, err := h.tokens.VerifyTokens(ctx)
		if err != nil {
			h.logger.Error("failed to load verify tokens", "error", err)
		}
		for _, t := range tokens {
			if constantTimeEqual(t, token) {
				return true
			}
		}
	}
	return h.envToken != "" && constantTimeEqual(h.envToken, token)
}

// Receive handles POST. It always acknowledges with 200 so the backends do
// not redeliver; failures are logged and counted.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := webhookTracer.Start(r.Context(), "messaging.webhook.receive")
	defer span.End()

	provider := "unknown"
	status := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			h.logger.Error("webhook handler panic", "panic", fmt.Sprint(rec))
			span.RecordError(fmt.Errorf("panic: %v", rec))
		}
		h.metrics.ObserveWebhook(provider, status, time.Since(start))
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		status = "read_error"
		h.logger.Error("failed to read webhook body", "error", err)
		span.RecordError(err)
		return
	}

	var inbound []Inbound
	if IsOfficialWebhook(body) {
		provider = ProviderOfficial
		if secret := h.appSecret(ctx); secret != "" && !VerifyOfficialSignature(body, r.Header.Get(SignatureHeader), secret) {
			status = "bad_signature"
			h.logger.Warn("discarding official webhook with invalid signature")
			span.RecordError(errors.New("invalid webhook signature"))
			return
		}
		inbound, err = ParseOfficialWebhook(body)
	} else {
		provider = ProviderEvolution
		inbound, err = ParseEvolutionWebhook(body)
	}
	span.SetAttributes(attribute.String("fretebot.provider", provider))
	if err != nil {
		status = "malformed"
		h.logger.Warn("failed to parse webhook", "provider", provider, "error", err)
		span.RecordError(err)
		return
	}
	if len(inbound) == 0 {
		status = "ignored"
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, h.dispatchWait)
	defer cancel()
	for _, in := range inbound {
		if err := h.dispatcher.Dispatch(dispatchCtx, in); err != nil {
			status = "dispatch_error"
			h.logger.Error("failed to dispatch inbound message", "error", err, "provider", provider, "message_id", in.Message.ID)
			span.RecordError(err)
		}
	}
	span.SetAttributes(attribute.Int("fretebot.inbound_count", len(inbound)))
}

func (h *WebhookHandler) appSecret(ctx context.Context) string {
	if h.cache == nil {
		return ""
	}
	cfg := h.cache.Get(ctx)
	if cfg.Official == nil {
		return ""
	}
	return cfg.Official.AppSecret
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
