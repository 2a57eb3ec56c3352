package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

var gatewayTracer = otel.Tracer("fretebot.internal.messaging.gateway")

// HTTPProviderFactory builds the REST clients for both backends.
type HTTPProviderFactory struct {
	HTTPClient   *http.Client
	GraphBaseURL string
}

func (f HTTPProviderFactory) Evolution(cfg EvolutionConfig) Provider {
	return NewEvolutionClient(cfg, f.HTTPClient)
}

func (f HTTPProviderFactory) Official(cfg OfficialConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = f.GraphBaseURL
	}
	return NewOfficialClient(cfg, f.HTTPClient)
}

// DeliveryStatus summarizes which backends can currently deliver.
type DeliveryStatus struct {
	SelfHostedConnected bool `json:"self_hosted_connected"`
	OfficialConfigured  bool `json:"official_configured"`
}

// Gateway sends and downloads through whichever backend is available,
// preferring the self-hosted one.
type Gateway struct {
	cache   *ConfigCache
	factory ProviderFactory
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

func WithProviderFactory(f ProviderFactory) GatewayOption { return func(g *Gateway) { g.factory = f } }
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption { return func(g *Gateway) { g.metrics = m } }

// NewGateway builds a gateway over a config cache.
func NewGateway(cache *ConfigCache, logger *logging.Logger, opts ...GatewayOption) *Gateway {
	if cache == nil {
		panic("messaging: config cache required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &Gateway{
		cache:   cache,
		factory: HTTPProviderFactory{GraphBaseURL: DefaultGraphBaseURL},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SendText delivers text to a phone number.
func (g *Gateway) SendText(ctx context.Context, to, text string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("messaging: recipient required")
	}
	return g.do(ctx, "send_text", true, func(ctx context.Context, p Provider) error {
		return p.SendText(ctx, to, text)
	})
}

// SendMedia delivers an image, document, audio or video to a phone number.
func (g *Gateway) SendMedia(ctx context.Context, to string, media OutboundMedia) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("messaging: recipient required")
	}
	if strings.TrimSpace(media.Payload) == "" {
		return errors.New("messaging: media payload required")
	}
	return g.do(ctx, "send_media", true, func(ctx context.Context, p Provider) error {
		return p.SendMedia(ctx, to, media)
	})
}

// DownloadMedia fetches received media. A paired session is not required, so
// the self-hosted backend is tried even when its state is unknown.
func (g *Gateway) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := g.do(ctx, "download_media", false, func(ctx context.Context, p Provider) error {
		out, err := p.DownloadMedia(ctx, ref)
		if err != nil {
			return err
		}
		data = out
		return nil
	})
	return data, err
}

// Status reports the self-hosted session state and whether the official
// backend is configured. Probe errors count as disconnected.
func (g *Gateway) Status(ctx context.Context) DeliveryStatus {
	cfg := g.cache.Get(ctx)
	var status DeliveryStatus
	if cfg.Evolution.Valid() {
		connected, err := g.factory.Evolution(*cfg.Evolution).Connected(ctx)
		if err != nil {
			g.logger.Warn("self-hosted status probe failed", "error", err)
		}
		status.SelfHostedConnected = err == nil && connected
	}
	status.OfficialConfigured = cfg.Official.Valid()
	return status
}

type pairer interface {
	Connect(ctx context.Context) (*PairingCode, error)
}

// PairingCode asks the self-hosted backend for a pairing code. It returns nil
// without error when no self-hosted backend is configured.
func (g *Gateway) PairingCode(ctx context.Context) (*PairingCode, error) {
	cfg := g.cache.Get(ctx)
	if !cfg.Evolution.Valid() {
		return nil, nil
	}
	p, ok := g.factory.Evolution(*cfg.Evolution).(pairer)
	if !ok {
		return nil, nil
	}
	code, err := p.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging: pairing code: %w", err)
	}
	return code, nil
}

type readMarker interface {
	MarkAsRead(ctx context.Context, messageID string) error
}

// MarkRead acknowledges an official backend message. Other backends ignore it.
func (g *Gateway) MarkRead(ctx context.Context, messageID string) error {
	cfg := g.cache.Get(ctx)
	if !cfg.Official.Valid() || messageID == "" {
		return nil
	}
	if m, ok := g.factory.Official(*cfg.Official).(readMarker); ok {
		return m.MarkAsRead(ctx, messageID)
	}
	return nil
}

// Invalidate drops the cached provider config.
func (g *Gateway) Invalidate() {
	g.cache.Invalidate()
}

// do runs fn against each configured backend in priority order until one
// succeeds. Session-bound backends are skipped when requireSession is set
// and they are not connected.
func (g *Gateway) do(ctx context.Context, operation string, requireSession bool, fn func(context.Context, Provider) error) error {
	ctx, span := gatewayTracer.Start(ctx, "messaging.gateway."+operation)
	defer span.End()

	providers := orderedProviders(g.cache.Get(ctx), g.factory)
	if len(providers) == 0 {
		span.RecordError(ErrNoProviderAvailable)
		return ErrNoProviderAvailable
	}

	var lastErr error
	for _, p := range providers {
		if requireSession && p.RequiresSession() {
			connected, err := p.Connected(ctx)
			if err != nil || !connected {
				if err == nil {
					err = fmt.Errorf("messaging: %s not connected", p.Name())
				}
				lastErr = err
				g.metrics.ObserveFallthrough(p.Name(), "disconnected")
				g.logger.Warn("provider unavailable, trying next", "provider", p.Name(), "operation", operation, "error", err)
				continue
			}
		}
		if err := fn(ctx, p); err != nil {
			lastErr = err
			g.metrics.ObserveOutbound(p.Name(), operation, "error")
			g.metrics.ObserveFallthrough(p.Name(), "error")
			g.logger.Warn("provider failed, trying next", "provider", p.Name(), "operation", operation, "error", err)
			continue
		}
		g.metrics.ObserveOutbound(p.Name(), operation, "ok")
		span.SetAttributes(attribute.String("fretebot.provider", p.Name()))
		return nil
	}

	err := fmt.Errorf("%w: %w", ErrNoProviderAvailable, lastErr)
	span.RecordError(err)
	g.logger.Error("all providers failed", "operation", operation, "error", lastErr)
	return err
}
