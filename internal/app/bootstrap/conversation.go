package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/conversation"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	"github.com/arteita/fretebot/internal/freight"
	"github.com/arteita/fretebot/internal/identity"
	"github.com/arteita/fretebot/internal/observability/metrics"
	"github.com/arteita/fretebot/internal/opportunity"
	"github.com/arteita/fretebot/internal/session"
	"github.com/arteita/fretebot/pkg/logging"
)

// BuildOracle wires the extraction oracle over the configured model backend
// and, when a database is available, the operator prompt overrides.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, bedrock extraction.BedrockConverseAPI, pool *pgxpool.Pool, m *metrics.Metrics, logger *logging.Logger) (*extraction.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary := oracleClientConfig(cfg, cfg.AIProvider, cfg.AIModel, bedrock)
	var fallback extraction.ClientConfig
	if cfg.AIFallbackProvider != "" && cfg.AIFallbackProvider != cfg.AIProvider {
		fallback = oracleClientConfig(cfg, cfg.AIFallbackProvider, cfg.AIFallbackModel, bedrock)
	}
	client, err := extraction.NewClientWithFallback(ctx, primary, fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: oracle client: %w", err)
	}

	opts := []extraction.Option{
		extraction.WithModel(primary.Model),
		extraction.WithTimeout(cfg.OracleTimeout),
		extraction.WithLogger(logger),
		extraction.WithMetrics(m),
	}
	if pool != nil {
		opts = append(opts, extraction.WithPromptSource(extraction.NewPostgresSettingsStore(pool)))
	}
	logger.Info("extraction oracle configured",
		"provider", primary.Provider,
		"model", primary.Model,
		"fallback_provider", fallback.Provider,
	)
	return extraction.NewService(client, opts...), nil
}

func oracleClientConfig(cfg *appconfig.Config, provider, model string, bedrock extraction.BedrockConverseAPI) extraction.ClientConfig {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = extraction.ProviderBedrock
	}
	if provider == extraction.ProviderBedrock && strings.TrimSpace(model) == "" {
		model = cfg.BedrockModelID
	}
	return extraction.ClientConfig{
		Provider:      provider,
		Model:         model,
		Bedrock:       bedrock,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}
}

// BuildFreightRepository returns the Postgres repository, or an in-memory one
// for local runs without a database.
func BuildFreightRepository(pool *pgxpool.Pool, logger *logging.Logger) freight.Repository {
	if pool == nil {
		if logger != nil {
			logger.Warn("no database configured; freight records are kept in memory")
		}
		return freight.NewMemoryRepository()
	}
	return freight.NewPostgresRepository(pool)
}

// EngineDeps are the collaborators of the conversation engine.
type EngineDeps struct {
	Store     session.Store
	Locker    session.Locker
	Messenger conversation.Messenger
	Freight   freight.Repository
	Oracle    conversation.Extractor
	Archive   conversation.MediaArchive
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// BuildEngine wires the driver conversation engine.
func BuildEngine(cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) *conversation.Engine {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []conversation.Option{
		conversation.WithLocker(deps.Locker),
		conversation.WithIdleTimeout(cfg.SessionIdleTimeout),
		conversation.WithOracleTimeout(cfg.OracleTimeout),
		conversation.WithLogger(logger),
		conversation.WithMetrics(deps.Metrics),
	}
	if deps.Archive != nil {
		opts = append(opts, conversation.WithArchive(deps.Archive))
	}
	if deps.Publisher != nil {
		opts = append(opts, conversation.WithPublisher(deps.Publisher))
	}
	return conversation.NewEngine(
		deps.Store,
		deps.Messenger,
		identity.NewMatcher(deps.Freight, logger),
		deps.Oracle,
		freight.NewRegistrar(deps.Freight),
		opts...,
	)
}

// Opportunities bundles the group monitor with its admin surface.
type Opportunities struct {
	Monitor *opportunity.Monitor
	Admin   *opportunity.AdminHandler
	// Groups is nil when no database is configured.
	Groups *opportunity.SQLGroupStore
}

// BuildOpportunities wires the group monitor. Without a database no group is
// monitored, since groups are enabled by operators.
func BuildOpportunities(cfg *appconfig.Config, db *sql.DB, pool *pgxpool.Pool, locations opportunity.LocationSource, classifier opportunity.Classifier, alerter opportunity.Alerter, publisher events.Publisher, m *metrics.Metrics, logger *logging.Logger) *Opportunities {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []opportunity.MonitorOption{
		opportunity.WithMinPricePerTon(cfg.MinPricePerTon),
		opportunity.WithLogger(logger),
		opportunity.WithMetrics(m),
	}
	if alerter != nil {
		opts = append(opts, opportunity.WithAlerter(alerter))
	}
	if publisher != nil {
		opts = append(opts, opportunity.WithPublisher(publisher))
	}

	if db == nil || pool == nil {
		logger.Warn("no database configured; group monitoring disabled")
		groups := opportunity.NewMemoryGroupStore()
		return &Opportunities{
			Monitor: opportunity.NewMonitor(groups, locations, classifier, opportunity.NewMemoryStore(), opts...),
			Admin:   opportunity.NewAdminHandler(nil, nil, logger),
		}
	}

	groups := opportunity.NewSQLGroupStore(db)
	store := opportunity.NewPostgresStore(pool)
	return &Opportunities{
		Monitor: opportunity.NewMonitor(groups, locations, classifier, store, opts...),
		Admin:   opportunity.NewAdminHandler(store, groups, logger),
		Groups:  groups,
	}
}
