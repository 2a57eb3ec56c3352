package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var evolutionTracer = otel.Tracer("fretebot.internal.messaging.evolution")

// EvolutionStateOpen is the connection state of a paired instance.
const EvolutionStateOpen = "open"

// WebhookEvents are the events subscribed by SetWebhook.
var WebhookEvents = []string{"MESSAGES_UPSERT", "CONNECTION_UPDATE", "QRCODE_UPDATED"}

// EvolutionClient talks to one instance of the self-hosted gateway.
type EvolutionClient struct {
	cfg  EvolutionConfig
	rest *restClient
}

var _ Provider = (*EvolutionClient)(nil)

// NewEvolutionClient builds a client. A nil httpClient gets a default with a timeout.
func NewEvolutionClient(cfg EvolutionConfig, httpClient *http.Client) *EvolutionClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &EvolutionClient{
		cfg:  cfg,
		rest: newRESTClient(ProviderEvolution, httpClient, map[string]string{"apikey": cfg.APIKey}),
	}
}

func (c *EvolutionClient) Name() string          { return ProviderEvolution }
func (c *EvolutionClient) RequiresSession() bool { return true }

// Instance returns the instance name this client manages.
func (c *EvolutionClient) Instance() string { return c.cfg.Instance }

func (c *EvolutionClient) endpoint(path string, withInstance bool) string {
	u := c.cfg.BaseURL + "/" + path
	if withInstance {
		u += "/" + url.PathEscape(c.cfg.Instance)
	}
	return u
}

// ConnectionState returns the raw instance state ("open", "connecting", "close").
func (c *EvolutionClient) ConnectionState(ctx context.Context) (string, error) {
	var resp struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			State        string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	if err := c.rest.doJSON(ctx, http.MethodGet, c.endpoint("instance/connectionState", true), nil, &resp); err != nil {
		return "", err
	}
	return firstNonBlank(resp.Instance.State, resp.State), nil
}

// Connected reports whether the instance has a live paired session.
func (c *EvolutionClient) Connected(ctx context.Context) (bool, error) {
	state, err := c.ConnectionState(ctx)
	if err != nil {
		return false, err
	}
	return state == EvolutionStateOpen, nil
}

// SendText delivers a text message.
func (c *EvolutionClient) SendText(ctx context.Context, to, text string) error {
	ctx, span := evolutionTracer.Start(ctx, "messaging.evolution.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("fretebot.instance", c.cfg.Instance))

	payload := map[string]any{"number": to, "text": text}
	if err := c.rest.doJSON(ctx, http.MethodPost, c.endpoint("message/sendText", true), payload, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SendMedia delivers an image, document, audio or video.
func (c *EvolutionClient) SendMedia(ctx context.Context, to string, media OutboundMedia) error {
	ctx, span := evolutionTracer.Start(ctx, "messaging.evolution.send_media")
	defer span.End()
	span.SetAttributes(
		attribute.String("fretebot.instance", c.cfg.Instance),
		attribute.String("fretebot.media_kind", string(media.Kind)),
	)

	payload := map[string]any{
		"number":    to,
		"mediatype": string(media.Kind),
		"media":     media.Payload,
	}
	if media.MimeType != "" {
		payload["mimetype"] = media.MimeType
	}
	if media.Caption != "" {
		payload["caption"] = media.Caption
	}
	if media.FileName != "" {
		payload["fileName"] = media.FileName
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, c.endpoint("message/sendMedia", true), payload, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// DownloadMedia fetches the decrypted bytes of a received message by its id.
func (c *EvolutionClient) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("messaging: media reference required")
	}
	payload := map[string]any{
		"message":      map[string]any{"key": map[string]any{"id": ref}},
		"convertToMp4": false,
	}
	var resp struct {
		Base64   string `json:"base64"`
		Mimetype string `json:"mimetype"`
	}
	if err := c.rest.doJSON(ctx, http.MethodPost, c.endpoint("chat/getBase64FromMediaMessage", true), payload, &resp); err != nil {
		return nil, err
	}
	if resp.Base64 == "" {
		return nil, fmt.Errorf("messaging: evolution returned no media for %s", ref)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, fmt.Errorf("messaging: decode evolution media: %w", err)
	}
	return data, nil
}

// PairingCode is what an operator scans or types to link a device.
type PairingCode struct {
	// Base64 is a data URL of the QR image when the gateway renders one.
	Base64 string `json:"base64,omitempty"`
	// Code is the raw QR payload.
	Code string `json:"code,omitempty"`
	// PairingCode is the short numeric code for phone-number linking.
	PairingCode string `json:"pairing_code,omitempty"`
}

// Empty reports whether the gateway returned nothing usable.
func (p *PairingCode) Empty() bool {
	return p == nil || (p.Base64 == "" && p.Code == "" && p.PairingCode == "")
}

// Connect asks the gateway for a pairing code for the instance.
func (c *EvolutionClient) Connect(ctx context.Context) (*PairingCode, error) {
	var resp struct {
		PairingCode string `json:"pairingCode"`
		Code        string `json:"code"`
		Base64      string `json:"base64"`
		QRCode      struct {
			Code   string `json:"code"`
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	}
	if err := c.rest.doJSON(ctx, http.MethodGet, c.endpoint("instance/connect", true), nil, &resp); err != nil {
		return nil, err
	}
	return &PairingCode{
		Base64:      firstNonBlank(resp.Base64, resp.QRCode.Base64),
		Code:        firstNonBlank(resp.Code, resp.QRCode.Code),
		PairingCode: resp.PairingCode,
	}, nil
}

// CreateInstance registers the instance on the gateway.
func (c *EvolutionClient) CreateInstance(ctx context.Context) (json.RawMessage, error) {
	payload := map[string]any{
		"instanceName": c.cfg.Instance,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}
	var raw json.RawMessage
	if err := c.rest.doJSON(ctx, http.MethodPost, c.endpoint("instance/create", false), payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// RestartInstance restarts the device session.
func (c *EvolutionClient) RestartInstance(ctx context.Context) error {
	return c.rest.doJSON(ctx, http.MethodPut, c.endpoint("instance/restart", true), nil, nil)
}

// LogoutInstance unlinks the paired device.
func (c *EvolutionClient) LogoutInstance(ctx context.Context) error {
	return c.rest.doJSON(ctx, http.MethodDelete, c.endpoint("instance/logout", true), nil, nil)
}

// DeleteInstance removes the instance from the gateway.
func (c *EvolutionClient) DeleteInstance(ctx context.Context) error {
	return c.rest.doJSON(ctx, http.MethodDelete, c.endpoint("instance/delete", true), nil, nil)
}

// SetWebhook points the instance's event delivery at webhookURL.
func (c *EvolutionClient) SetWebhook(ctx context.Context, webhookURL string, events []string) error {
	if len(events) == 0 {
		events = WebhookEvents
	}
	payload := map[string]any{
		"webhook": map[string]any{
			"enabled":         true,
			"url":             webhookURL,
			"webhookByEvents": false,
			"webhookBase64":   false,
			"events":          events,
		},
	}
	return c.rest.doJSON(ctx, http.MethodPost, c.endpoint("webhook/set", true), payload, nil)
}

// FindWebhook returns the instance's webhook settings as reported by the gateway.
func (c *EvolutionClient) FindWebhook(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.rest.doJSON(ctx, http.MethodGet, c.endpoint("webhook/find", true), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchInstances lists every instance on the gateway.
func (c *EvolutionClient) FetchInstances(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.rest.doJSON(ctx, http.MethodGet, c.endpoint("instance/fetchInstances", false), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GroupInfo is a group the instance participates in.
type GroupInfo struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Size    int    `json:"size,omitempty"`
}

// FetchGroups lists the groups the paired device belongs to.
func (c *EvolutionClient) FetchGroups(ctx context.Context) ([]GroupInfo, error) {
	var groups []GroupInfo
	endpoint := c.endpoint("group/fetchAllGroups", true) + "?getParticipants=false"
	if err := c.rest.doJSON(ctx, http.MethodGet, endpoint, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
