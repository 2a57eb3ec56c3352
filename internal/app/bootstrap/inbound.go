package bootstrap

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/inbound"
	"github.com/arteita/fretebot/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildQueue selects the inbound work queue. The sqs backend needs a client
// and a queue URL; the memory backend only works inside a single process.
func BuildQueue(cfg *appconfig.Config, sqsClient inbound.SQSAPI, logger *logging.Logger) (inbound.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.QueueBackend {
	case "sqs":
		if sqsClient == nil || strings.TrimSpace(cfg.InboundQueueURL) == "" {
			return nil, fmt.Errorf("bootstrap: queue backend sqs requires a client and INBOUND_QUEUE_URL")
		}
		logger.Info("using sqs inbound queue", "url", cfg.InboundQueueURL)
		return inbound.NewSQSQueue(sqsClient, cfg.InboundQueueURL), nil
	case "memory", "":
		logger.Info("using in-memory inbound queue", "buffer", memoryQueueBuffer)
		return inbound.NewMemoryQueue(memoryQueueBuffer), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown queue backend %q", cfg.QueueBackend)
	}
}

// BuildDeduper prefers Redis, then the processed_events table, then process
// memory.
func BuildDeduper(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) inbound.Deduper {
	if logger == nil {
		logger = logging.Default()
	}
	switch {
	case redisClient != nil:
		logger.Info("inbound dedup backed by redis", "ttl", cfg.DedupTTL.String())
		return inbound.NewRedisDeduper(redisClient, cfg.DedupTTL)
	case pool != nil:
		logger.Info("inbound dedup backed by postgres")
		return inbound.NewPostgresDeduper(events.NewProcessedStore(pool))
	default:
		logger.Info("inbound dedup kept in memory", "ttl", cfg.DedupTTL.String())
		return inbound.NewMemoryDeduper(cfg.DedupTTL)
	}
}
