package messaging

import (
	"context"
	"errors"
	"strings"
)

const (
	// ProviderEvolution is the self-hosted multi-device gateway.
	ProviderEvolution = "evolution"
	// ProviderOfficial is the official cloud API.
	ProviderOfficial = "official"
)

// ErrNoProviderAvailable is returned once every configured backend failed or
// none is configured.
var ErrNoProviderAvailable = errors.New("messaging: no provider available")

// MediaKind is the outbound media category.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
)

// OutboundMedia describes a media send. Payload is either an https URL or
// base64 encoded content.
type OutboundMedia struct {
	Kind     MediaKind
	Payload  string
	MimeType string
	Caption  string
	FileName string
}

// IsURL reports whether the payload is a remote link rather than inline bytes.
func (m OutboundMedia) IsURL() bool {
	p := strings.ToLower(strings.TrimSpace(m.Payload))
	return strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "http://")
}

// Provider is one messaging backend.
type Provider interface {
	Name() string
	// RequiresSession is true for backends that only deliver while a live
	// device session is paired.
	RequiresSession() bool
	Connected(ctx context.Context) (bool, error)
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to string, media OutboundMedia) error
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)
}

// EvolutionConfig holds self-hosted gateway credentials.
type EvolutionConfig struct {
	ID       string `json:"id,omitempty"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"-"`
	Instance string `json:"instance"`
}

// Valid reports whether every field needed to talk to the gateway is set.
func (c *EvolutionConfig) Valid() bool {
	return c != nil && strings.TrimSpace(c.BaseURL) != "" && c.APIKey != "" && strings.TrimSpace(c.Instance) != ""
}

// OfficialConfig holds official cloud API credentials.
type OfficialConfig struct {
	ID            string `json:"id,omitempty"`
	Token         string `json:"-"`
	PhoneNumberID string `json:"phone_number_id"`
	VerifyToken   string `json:"-"`
	AppSecret     string `json:"-"`
	BaseURL       string `json:"base_url,omitempty"`
}

// Valid reports whether the backend can send.
func (c *OfficialConfig) Valid() bool {
	return c != nil && c.Token != "" && strings.TrimSpace(c.PhoneNumberID) != ""
}

// ProviderConfig is the snapshot of both backends' credentials.
type ProviderConfig struct {
	Evolution *EvolutionConfig
	Official  *OfficialConfig
}

// ProviderFactory builds provider clients from a config snapshot.
type ProviderFactory interface {
	Evolution(cfg EvolutionConfig) Provider
	Official(cfg OfficialConfig) Provider
}

// orderedProviders returns the configured backends in send priority order:
// self-hosted first, official second.
func orderedProviders(cfg ProviderConfig, factory ProviderFactory) []Provider {
	var out []Provider
	if cfg.Evolution.Valid() {
		out = append(out, factory.Evolution(*cfg.Evolution))
	}
	if cfg.Official.Valid() {
		out = append(out, factory.Official(*cfg.Official))
	}
	return out
}
