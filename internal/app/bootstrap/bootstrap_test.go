package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/inbound"
	"github.com/arteita/fretebot/internal/notify"
	"github.com/arteita/fretebot/internal/session"
	"github.com/arteita/fretebot/pkg/logging"
)

func TestBuildSessionStoreMemory(t *testing.T) {
	store, locker, err := BuildSessionStore(&appconfig.Config{SessionBackend: "memory"}, nil, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
	if _, ok := locker.(*session.KeyedMutex); !ok {
		t.Fatalf("expected KeyedMutex, got %T", locker)
	}
}

func TestBuildSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{SessionBackend: "redis", RedisAddr: mr.Addr(), SessionIdleTimeout: time.Minute}
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	if client == nil {
		t.Fatalf("expected redis client")
	}
	defer client.Close()

	store, locker, err := BuildSessionStore(cfg, client, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*session.RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
	if _, ok := locker.(*session.RedisLocker); !ok {
		t.Fatalf("expected RedisLocker, got %T", locker)
	}
}

func TestBuildSessionStoreErrors(t *testing.T) {
	if _, _, err := BuildSessionStore(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, _, err := BuildSessionStore(&appconfig.Config{SessionBackend: "redis"}, nil, nil); err == nil {
		t.Fatalf("expected error for redis backend without client")
	}
	if _, _, err := BuildSessionStore(&appconfig.Config{SessionBackend: "etcd"}, nil, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{RedisAddr: "127.0.0.1:1"}
	if client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true); client != nil {
		t.Fatalf("expected nil client when redis is unreachable")
	}
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, nil, false); client != nil {
		t.Fatalf("expected nil client without an address")
	}
}

func TestBuildQueue(t *testing.T) {
	q, err := BuildQueue(&appconfig.Config{QueueBackend: "memory"}, nil, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := q.(*inbound.MemoryQueue); !ok {
		t.Fatalf("expected MemoryQueue, got %T", q)
	}
	if _, err := BuildQueue(&appconfig.Config{QueueBackend: "sqs"}, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error for sqs without client")
	}
	if _, err := BuildQueue(&appconfig.Config{QueueBackend: "kafka"}, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildDeduperPrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), DedupTTL: time.Hour}
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), false)
	defer client.Close()

	if _, ok := BuildDeduper(cfg, client, nil, logging.Discard()).(*inbound.RedisDeduper); !ok {
		t.Fatalf("expected redis deduper")
	}
	if _, ok := BuildDeduper(cfg, nil, nil, logging.Discard()).(*inbound.MemoryDeduper); !ok {
		t.Fatalf("expected memory deduper")
	}
}

func TestEnvProviderConfig(t *testing.T) {
	cfg := &appconfig.Config{
		EvolutionAPIURL:         "http://evolution:8080/",
		EvolutionAPIKey:         "k",
		EvolutionInstance:       "frota",
		WhatsAppBusinessToken:   "",
		WhatsAppBusinessPhoneID: "1234",
	}
	got := EnvProviderConfig(cfg)
	if got.Evolution == nil || got.Evolution.BaseURL != "http://evolution:8080" {
		t.Fatalf("expected trimmed self-hosted config, got %+v", got.Evolution)
	}
	if got.Official != nil {
		t.Fatalf("expected official backend to be skipped without a token")
	}
}

func TestBuildEventPipelineWithoutInfrastructure(t *testing.T) {
	cfg := &appconfig.Config{}

	p := BuildEventPipeline(cfg, nil, nil, logging.Discard())
	if _, ok := p.Publisher.(*events.LogPublisher); !ok {
		t.Fatalf("expected log publisher, got %T", p.Publisher)
	}
	if p.Deliverer != nil {
		t.Fatalf("expected no deliverer without a database")
	}

	notifier := notify.NewService(nil, nil, notify.Recipients{}, logging.Discard())
	p = BuildEventPipeline(cfg, nil, notifier, logging.Discard())
	if _, ok := p.Publisher.(*events.DirectPublisher); !ok {
		t.Fatalf("expected direct publisher, got %T", p.Publisher)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	sender := BuildEmailSender(&appconfig.Config{}, nil, logging.Discard())
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender, got %T", sender)
	}

	sender = BuildEmailSender(&appconfig.Config{SendGridAPIKey: "SG.key", SendGridFromEmail: "fretes@example.com"}, nil, logging.Discard())
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}
}

func TestNewAppServesHealthAndWebhook(t *testing.T) {
	cfg := &appconfig.Config{
		SessionBackend: "memory",
		QueueBackend:   "memory",
		WorkerCount:    1,
		AIProvider:     "openai",
		OpenAIAPIKey:   "sk-test",
		EventsExchange: "fretebot.events",
	}
	app, err := NewApp(context.Background(), cfg, Clients{}, logging.Discard())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.Start(ctx)

	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime metrics to be exported")
	}

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/webhook/whatsapp", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected webhook probe 200, got %d", rr.Code)
	}

	cancel()
	app.Wait()
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewAppRejectsUnknownProvider(t *testing.T) {
	cfg := &appconfig.Config{AIProvider: "kimi"}
	if _, err := NewApp(context.Background(), cfg, Clients{}, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown oracle provider")
	}
	if _, err := NewApp(context.Background(), nil, Clients{}, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
