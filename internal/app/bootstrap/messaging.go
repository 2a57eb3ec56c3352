package bootstrap

import (
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/pkg/logging"
)

// EnvProviderConfig maps the process environment onto provider credentials.
// Backends with incomplete settings are left nil.
func EnvProviderConfig(cfg *appconfig.Config) messaging.ProviderConfig {
	var out messaging.ProviderConfig
	if cfg == nil {
		return out
	}
	evo := &messaging.EvolutionConfig{
		BaseURL:  strings.TrimRight(strings.TrimSpace(cfg.EvolutionAPIURL), "/"),
		APIKey:   cfg.EvolutionAPIKey,
		Instance: strings.TrimSpace(cfg.EvolutionInstance),
	}
	if evo.Valid() {
		out.Evolution = evo
	}
	official := &messaging.OfficialConfig{
		Token:         cfg.WhatsAppBusinessToken,
		PhoneNumberID: strings.TrimSpace(cfg.WhatsAppBusinessPhoneID),
		VerifyToken:   cfg.WhatsAppVerifyToken,
		AppSecret:     cfg.WhatsAppAppSecret,
		BaseURL:       cfg.WhatsAppGraphBaseURL,
	}
	if official.Valid() {
		out.Official = official
	}
	return out
}

// Messaging bundles the gateway with its config plumbing.
type Messaging struct {
	Gateway *messaging.Gateway
	Cache   *messaging.ConfigCache
	// Store is nil when no database is configured.
	Store *messaging.PostgresConfigStore
}

// BuildMessaging wires the gateway over database-managed credentials with the
// environment as fallback.
func BuildMessaging(cfg *appconfig.Config, pool *pgxpool.Pool, m *metrics.Metrics, logger *logging.Logger) *Messaging {
	if logger == nil {
		logger = logging.Default()
	}
	env := EnvProviderConfig(cfg)

	out := &Messaging{}
	var source messaging.ConfigSource
	if pool != nil {
		out.Store = messaging.NewPostgresConfigStore(pool)
		source = out.Store
	}
	out.Cache = messaging.NewConfigCache(source, env, cfg.ProviderConfigTTL, logger)

	factory := messaging.HTTPProviderFactory{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		GraphBaseURL: cfg.WhatsAppGraphBaseURL,
	}
	out.Gateway = messaging.NewGateway(out.Cache, logger,
		messaging.WithProviderFactory(factory),
		messaging.WithGatewayMetrics(m),
	)
	logger.Info("messaging gateway configured",
		"env_self_hosted", env.Evolution != nil,
		"env_official", env.Official != nil,
		"db_configs", pool != nil,
	)
	return out
}

// BuildMessagingHandlers builds the public webhook handler and the admin
// handler for the gateway.
func BuildMessagingHandlers(cfg *appconfig.Config, msg *Messaging, dispatcher messaging.Dispatcher, m *metrics.Metrics, logger *logging.Logger) (*messaging.WebhookHandler, *messaging.AdminHandler) {
	whCfg := messaging.WebhookHandlerConfig{
		Dispatcher:  dispatcher,
		Cache:       msg.Cache,
		VerifyToken: cfg.WhatsAppVerifyToken,
		Logger:      logger,
		Metrics:     m,
	}
	var instances *messaging.InstanceManager
	if msg.Store != nil {
		whCfg.Tokens = msg.Store
		instances = messaging.NewInstanceManager(msg.Store, msg.Gateway, cfg.PublicBaseURL, logger)
	}
	return messaging.NewWebhookHandler(whCfg), messaging.NewAdminHandler(msg.Gateway, instances, logger)
}
