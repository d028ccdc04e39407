package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEncryptionKeyMissing = errors.New("ENCRYPTION_KEY_V1 is missing")
	ErrSupabaseURLMissing   = errors.New("SUPABASE_URL is missing")
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	Environment    string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	RateLimitBackend string

	// Kafka
	KafkaBrokers            []string
	KafkaGroupID            string
	KafkaFunnelTopic        string
	KafkaNotificationsTopic string
	KafkaAlertsTopic        string

	// Supabase (auth + storage)
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	AttachmentsBucket      string
	SignedURLTTL           time.Duration
	IdentityCacheTTL       time.Duration
	IdentityCacheSize      int

	// Security
	EncryptionKey       string
	AdminEmailAllowlist []string
	AdminSessionCookie  string
	InternalAdminSecret string
	AdminRateLimit      bool

	// LLM
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	GoogleAPIKey   string
	GoogleBaseURL  string
	GoogleModel    string
	LLMTimeout     time.Duration
	ChatMaxSources int

	// Notifications
	SMSProvider       string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioBaseURL     string
	AdminPhoneNumbers []string
	AdminDashboardURL string

	// Rule files
	LeadScoringConfigPath string
	AlertThresholdsPath   string
	DLPRulesPath          string

	// RAG
	RAGChunkMaxLength int

	// Outbound HTTP
	UpstreamRequestTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		Environment:    getEnv("APP_ENV", "development"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "healo"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "healo"),
		PostgresDB:       getEnv("POSTGRES_DB", "healo"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		RateLimitBackend: strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),

		KafkaBrokers:            getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "healo-concierge"),
		KafkaFunnelTopic:        getEnv("KAFKA_TOPIC_FUNNEL", "healo.funnel-events"),
		KafkaNotificationsTopic: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "healo.admin-notifications"),
		KafkaAlertsTopic:        getEnv("KAFKA_TOPIC_ALERTS", "healo.operational-alerts"),

		SupabaseURL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		AttachmentsBucket:      getEnv("ATTACHMENTS_BUCKET", "attachments"),
		SignedURLTTL:           getDuration("SIGNED_URL_TTL", 5*time.Minute),
		IdentityCacheTTL:       getDuration("IDENTITY_CACHE_TTL", 30*time.Second),
		IdentityCacheSize:      getIntEnv("IDENTITY_CACHE_SIZE", 256),

		EncryptionKey:       firstEnv("ENCRYPTION_KEY_V1", "SUPABASE_ENCRYPTION_KEY"),
		AdminEmailAllowlist: lowerAll(getListEnv("ADMIN_EMAIL_ALLOWLIST")),
		AdminSessionCookie:  getEnv("ADMIN_SESSION_COOKIE", "sb-access-token"),
		InternalAdminSecret: getEnv("INTERNAL_ADMIN_SECRET", ""),
		AdminRateLimit:      getBoolEnv("ADMIN_RATE_LIMIT_ENABLED", true),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GoogleAPIKey:   firstEnv("GOOGLE_GENERATIVE_AI_API_KEY", "GOOGLE_API_KEY"),
		GoogleBaseURL:  getEnv("GOOGLE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GoogleModel:    getEnv("GOOGLE_MODEL", "gemini-2.0-flash"),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 30*time.Second),
		ChatMaxSources: getIntEnv("CHAT_MAX_SOURCES", 6),

		SMSProvider:       strings.ToLower(getEnv("SMS_PROVIDER", "console")),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioBaseURL:     getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		AdminPhoneNumbers: getListEnv("ADMIN_PHONE_NUMBERS"),
		AdminDashboardURL: strings.TrimRight(getEnv("ADMIN_DASHBOARD_URL", ""), "/"),

		LeadScoringConfigPath: getEnv("LEAD_SCORING_CONFIG", ""),
		AlertThresholdsPath:   getEnv("ALERT_THRESHOLDS_CONFIG", ""),
		DLPRulesPath:          getEnv("DLP_RULES_CONFIG", ""),

		RAGChunkMaxLength: getIntEnv("RAG_CHUNK_MAX_LENGTH", 800),

		UpstreamRequestTimeout: getDuration("UPSTREAM_REQUEST_TIMEOUT", 10*time.Second),
	}
}

// Validate is called once at process start. The API refuses to serve
// without an encryption key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return ErrEncryptionKeyMissing
	}
	if c.SupabaseURL == "" {
		return ErrSupabaseURLMissing
	}
	if c.RAGChunkMaxLength <= 0 {
		return fmt.Errorf("RAG_CHUNK_MAX_LENGTH must be positive, got %d", c.RAGChunkMaxLength)
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDB,
		c.PostgresPort,
		c.PostgresSSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if list := getListEnv(key); len(list) > 0 {
		return list
	}
	return defaultValue
}

// getListEnv splits a comma separated value, trimming entries and dropping empties.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return values
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
