package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Application base URL
	BaseURL string

	// Document store
	DocumentStore string // "postgres", "mongo" or "memory"
	DatabaseUrl   string
	MongoURI      string
	MongoDatabase string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Mail transport
	MailProvider   string // "smtp" or "sendgrid"
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SendGridAPIKey string

	// ContactInbox receives public contact form enquiries.
	ContactInbox string

	// Mail gateway. The secret may be a bcrypt hash, in which case
	// MailGatewayToken must hold the plaintext the submitter presents.
	MailGatewaySecret string
	MailGatewayToken  string
	MailGatewayURL    string

	// Bearer authentication
	JWTSecret string
	JWTIssuer string

	// Admin access control. Listed emails see every company regardless of
	// the role stored on their user document.
	AdminEmails []string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration
	WorkerRetryBase    time.Duration
	WorkerMaxAttempts  int

	// Authoring sessions
	DraftTTL time.Duration

	MaxAttachmentBytes int64

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		DocumentStore: getEnv("DOCUMENT_STORE", "postgres"),
		DatabaseUrl:   getEnv("DATABASE_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "safetyline"),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// SMTP defaults for Mailhog (development)
		MailProvider:   getEnv("MAIL_PROVIDER", "smtp"),
		SMTPHost:       getEnv("SMTP_HOST", "localhost"),
		SMTPPort:       getEnvInt("SMTP_PORT", 1025),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "incidents@safetyline.local"),
		ContactInbox:   getEnv("CONTACT_INBOX", "incidents@safetyline.local"),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		MailGatewaySecret: getEnv("MAIL_GATEWAY_SECRET", ""),
		MailGatewayToken:  getEnv("MAIL_GATEWAY_TOKEN", ""),

		JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", time.Minute),
		WorkerRetryBase:    getEnvDuration("WORKER_RETRY_BASE", 30*time.Second),
		WorkerMaxAttempts:  getEnvInt("WORKER_MAX_ATTEMPTS", 5),

		DraftTTL: getEnvDuration("DRAFT_TTL", 2*time.Hour),

		MaxAttachmentBytes: int64(getEnvInt("MAX_ATTACHMENT_BYTES", 10<<20)),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	for _, email := range getEnvList("ADMIN_EMAILS") {
		cfg.AdminEmails = append(cfg.AdminEmails, strings.ToLower(email))
	}

	cfg.MailGatewayURL = strings.TrimRight(getEnv("MAIL_GATEWAY_URL", cfg.BaseURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DocumentStore {
	case "postgres":
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when DOCUMENT_STORE is 'postgres'")
		}
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DOCUMENT_STORE is 'mongo'")
		}
	case "memory":
	default:
		return fmt.Errorf("DOCUMENT_STORE must be one of 'postgres', 'mongo' or 'memory', got: %s", c.DocumentStore)
	}

	// The job queue lives in Postgres regardless of the document store.
	if c.WorkerEnabled && c.DatabaseUrl == "" {
		return fmt.Errorf("DATABASE_URL is required when WORKER_ENABLED is true")
	}

	// Validate storage configuration
	if c.StorageProvider == "r2" {
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if c.StorageProvider != "local" {
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", c.StorageProvider)
	}

	switch c.MailProvider {
	case "smtp":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_PROVIDER is 'sendgrid'")
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be either 'smtp' or 'sendgrid', got: %s", c.MailProvider)
	}

	if c.MailGatewaySecret == "" {
		return fmt.Errorf("MAIL_GATEWAY_SECRET is required")
	}
	if c.MailGatewayToken == "" {
		if strings.HasPrefix(c.MailGatewaySecret, "$2") {
			return fmt.Errorf("MAIL_GATEWAY_TOKEN is required when MAIL_GATEWAY_SECRET is a bcrypt hash")
		}
		c.MailGatewayToken = c.MailGatewaySecret
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	if c.DraftTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be positive")
	}
	if c.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("MAX_ATTACHMENT_BYTES must be positive")
	}

	return nil
}

// IsDevelopment reports whether the process runs with ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
