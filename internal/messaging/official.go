package messaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var officialTracer = otel.Tracer("fretebot.internal.messaging.official")

// DefaultGraphBaseURL is the versioned cloud API root.
const DefaultGraphBaseURL = "https://graph.facebook.com/v20.0"

// OfficialClient sends and downloads through the official cloud API.
type OfficialClient struct {
	cfg  OfficialConfig
	rest *restClient
}

var _ Provider = (*OfficialClient)(nil)

// NewOfficialClient builds a client. A nil httpClient gets a default with a timeout.
func NewOfficialClient(cfg OfficialConfig, httpClient *http.Client) *OfficialClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	return &OfficialClient{
		cfg:  cfg,
		rest: newRESTClient(ProviderOfficial, httpClient, map[string]string{"Authorization": "Bearer " + cfg.Token}),
	}
}

func (c *OfficialClient) Name() string          { return ProviderOfficial }
func (c *OfficialClient) RequiresSession() bool { return false }

// Connected is true whenever credentials are present; the cloud API has no device session.
func (c *OfficialClient) Connected(context.Context) (bool, error) {
	return c.cfg.Valid(), nil
}

func (c *OfficialClient) messagesURL() string {
	return c.cfg.BaseURL + "/" + url.PathEscape(c.cfg.PhoneNumberID) + "/messages"
}

func (c *OfficialClient) send(ctx context.Context, payload map[string]any) error {
	payload["messaging_product"] = "whatsapp"
	return c.rest.doJSON(ctx, http.MethodPost, c.messagesURL(), payload, nil)
}

// SendText delivers a text message.
func (c *OfficialClient) SendText(ctx context.Context, to, text string) error {
	ctx, span := officialTracer.Start(ctx, "messaging.official.send_text")
	defer span.End()

	err := c.send(ctx, map[string]any{
		"recipient_type": "individual",
		"to":             to,
		"type":           "text",
		"text":           map[string]any{"preview_url": false, "body": text},
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// SendMedia delivers media by link, uploading inline base64 content first.
func (c *OfficialClient) SendMedia(ctx context.Context, to string, media OutboundMedia) error {
	ctx, span := officialTracer.Start(ctx, "messaging.official.send_media")
	defer span.End()
	span.SetAttributes(attribute.String("fretebot.media_kind", string(media.Kind)))

	object := map[string]any{}
	if media.IsURL() {
		object["link"] = media.Payload
	} else {
		id, err := c.uploadMedia(ctx, media)
		if err != nil {
			span.RecordError(err)
			return err
		}
		object["id"] = id
	}
	if media.Caption != "" && media.Kind != MediaAudio {
		object["caption"] = media.Caption
	}
	if media.FileName != "" && media.Kind == MediaDocument {
		object["filename"] = media.FileName
	}

	payload := map[string]any{
		"recipient_type": "individual",
		"to":             to,
		"type":           string(media.Kind),
	}
	payload[string(media.Kind)] = object
	err := c.send(ctx, payload)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *OfficialClient) uploadMedia(ctx context.Context, media OutboundMedia) (string, error) {
	payload := media.Payload
	if i := strings.Index(payload, ";base64,"); i >= 0 {
		payload = payload[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("messaging: decode official upload: %w", err)
	}
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	fileName := media.FileName
	if fileName == "" {
		fileName = string(media.Kind)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	_ = form.WriteField("messaging_product", "whatsapp")
	_ = form.WriteField("type", mimeType)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("messaging: build official upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("messaging: build official upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("messaging: build official upload: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/" + url.PathEscape(c.cfg.PhoneNumberID) + "/media"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("messaging: build official upload: %w", err)
	}
	c.rest.applyHeaders(req)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.rest.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("messaging: official upload: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Provider: ProviderOfficial, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.ID == "" {
		return "", errors.New("messaging: official upload returned no media id")
	}
	return parsed.ID, nil
}

// DownloadMedia resolves the media id to a short-lived URL, then fetches it.
func (c *OfficialClient) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("messaging: media reference required")
	}
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := c.rest.doJSON(ctx, http.MethodGet, c.cfg.BaseURL+"/"+url.PathEscape(ref), nil, &meta); err != nil {
		return nil, err
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("messaging: official media %s has no url", ref)
	}
	return c.rest.getRaw(ctx, meta.URL)
}

// MarkAsRead acknowledges a received message.
func (c *OfficialClient) MarkAsRead(ctx context.Context, messageID string) error {
	return c.send(ctx, map[string]any{"status": "read", "message_id": messageID})
}
