package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	AdminJWTSecret string
	AdminJWTIssuer string

	// Public webhook throttling per client IP; zero disables it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	// Session and inbound processing
	SessionBackend     string
	SessionIdleTimeout time.Duration
	QueueBackend       string
	InboundQueueURL    string
	WorkerCount        int
	InlineWorkers      bool
	DedupTTL           time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Self-hosted (Evolution) messaging backend
	EvolutionAPIURL   string
	EvolutionAPIKey   string
	EvolutionInstance string

	// Official cloud messaging backend
	WhatsAppBusinessToken   string
	WhatsAppBusinessPhoneID string
	WhatsAppVerifyToken     string
	WhatsAppAppSecret       string
	WhatsAppGraphBaseURL    string
	ProviderConfigTTL       time.Duration

	// Extraction oracle
	AIProvider         string
	AIModel            string
	AIFallbackProvider string
	AIFallbackModel    string
	BedrockModelID     string
	GeminiAPIKey       string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OracleTimeout      time.Duration
	MinPricePerTon     float64

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MediaArchiveBucket  string

	// Domain events
	AMQPURL        string
	EventsExchange string

	// Operator alerts
	AlertEmailTo      string
	AlertPhones       []string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	// AlertSubjectPrefix tags every alert subject for inbox filtering.
	AlertSubjectPrefix string
	AlertReplyTo       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer: getEnv("ADMIN_JWT_ISSUER", ""),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		SessionBackend:     strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		QueueBackend:       strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", "memory"))),
		InboundQueueURL:    getEnv("INBOUND_QUEUE_URL", ""),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 4),
		InlineWorkers:      getEnvAsBool("INLINE_WORKERS", true),
		DedupTTL:           getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EvolutionAPIURL:   getEnv("EVOLUTION_API_URL", ""),
		EvolutionAPIKey:   getEnv("EVOLUTION_API_KEY", ""),
		EvolutionInstance: getEnv("EVOLUTION_INSTANCE", ""),

		WhatsAppBusinessToken:   getEnv("WHATSAPP_BUSINESS_TOKEN", ""),
		WhatsAppBusinessPhoneID: getEnv("WHATSAPP_BUSINESS_PHONE_ID", ""),
		WhatsAppVerifyToken:     getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:       getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppGraphBaseURL:    getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com/v20.0"),
		ProviderConfigTTL:       getEnvAsDuration("PROVIDER_CONFIG_TTL", 60*time.Second),

		AIProvider:         strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "bedrock"))),
		AIModel:            getEnv("AI_MODEL", ""),
		AIFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("AI_FALLBACK_PROVIDER", ""))),
		AIFallbackModel:    getEnv("AI_FALLBACK_MODEL", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		OracleTimeout:      getEnvAsDuration("ORACLE_TIMEOUT", 60*time.Second),
		MinPricePerTon:     getEnvAsFloat("MIN_PRICE_PER_TON", 0),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MediaArchiveBucket:  getEnv("MEDIA_ARCHIVE_BUCKET", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		EventsExchange: getEnv("EVENTS_EXCHANGE", "fretebot.events"),

		AlertEmailTo:       getEnv("ALERT_EMAIL_TO", ""),
		AlertPhones:        getEnvAsList("ALERT_PHONES"),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Fretebot"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		AlertSubjectPrefix: getEnv("ALERT_SUBJECT_PREFIX", "[Fretebot]"),
		AlertReplyTo:       getEnv("ALERT_REPLY_TO", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
