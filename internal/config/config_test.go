package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	t.Setenv("PROVIDER_CONFIG_TTL", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("MIN_PRICE_PER_TON", "")
	t.Setenv("ALERT_SUBJECT_PREFIX", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Fatalf("expected 10m idle timeout, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.ProviderConfigTTL != 60*time.Second {
		t.Fatalf("expected 60s provider config ttl, got %s", cfg.ProviderConfigTTL)
	}
	if cfg.AIProvider != "bedrock" {
		t.Fatalf("expected bedrock default provider, got %s", cfg.AIProvider)
	}
	if cfg.MinPricePerTon != 0 {
		t.Fatalf("expected zero min price per ton, got %v", cfg.MinPricePerTon)
	}
	if cfg.WhatsAppGraphBaseURL != "https://graph.facebook.com/v20.0" {
		t.Fatalf("unexpected graph base url %s", cfg.WhatsAppGraphBaseURL)
	}
	if cfg.AlertSubjectPrefix != "[Fretebot]" {
		t.Fatalf("unexpected alert subject prefix %s", cfg.AlertSubjectPrefix)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_BACKEND", " Redis ")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EVOLUTION_API_URL", "http://evolution:8080")
	t.Setenv("EVOLUTION_INSTANCE", "frota")
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("ORACLE_TIMEOUT", "15s")
	t.Setenv("MIN_PRICE_PER_TON", "85.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected normalized session backend, got %q", cfg.SessionBackend)
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Fatalf("expected idle override, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker override, got %d", cfg.WorkerCount)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.EvolutionAPIURL != "http://evolution:8080" || cfg.EvolutionInstance != "frota" {
		t.Fatalf("expected evolution overrides, got %s/%s", cfg.EvolutionAPIURL, cfg.EvolutionInstance)
	}
	if cfg.AIProvider != "openai" {
		t.Fatalf("expected normalized provider, got %s", cfg.AIProvider)
	}
	if cfg.OracleTimeout != 15*time.Second {
		t.Fatalf("expected oracle timeout override, got %s", cfg.OracleTimeout)
	}
	if cfg.MinPricePerTon != 85.5 {
		t.Fatalf("expected min price override, got %v", cfg.MinPricePerTon)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	t.Setenv("MIN_PRICE_PER_TON", "cheap")
	cfg := Load()
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Fatalf("expected default idle timeout, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.MinPricePerTon != 0 {
		t.Fatalf("expected default min price, got %v", cfg.MinPricePerTon)
	}
}

func TestAlertPhonesSplitsAndTrims(t *testing.T) {
	t.Setenv("ALERT_PHONES", " 5534999991111, ,5511988887777 ")
	cfg := Load()
	if len(cfg.AlertPhones) != 2 {
		t.Fatalf("expected 2 alert phones, got %v", cfg.AlertPhones)
	}
	if cfg.AlertPhones[0] != "5534999991111" || cfg.AlertPhones[1] != "5511988887777" {
		t.Fatalf("unexpected alert phones %v", cfg.AlertPhones)
	}

	t.Setenv("ALERT_PHONES", "")
	if phones := Load().AlertPhones; phones != nil {
		t.Fatalf("expected no alert phones, got %v", phones)
	}
}

func TestWebhookRateDefaults(t *testing.T) {
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "")
	t.Setenv("WEBHOOK_RATE_BURST", "")
	cfg := Load()
	if cfg.WebhookRatePerSecond != 20 || cfg.WebhookRateBurst != 40 {
		t.Fatalf("unexpected webhook rate defaults %v/%d", cfg.WebhookRatePerSecond, cfg.WebhookRateBurst)
	}
}
