package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// QuickBooks environments
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Token store driver constants
const (
	TokenStoreFirestore = "firestore"
	TokenStoreDatabase  = "database"
	TokenStoreMemory    = "memory"
)

// OAuth state store constants
const (
	StateStoreMemory   = "memory"
	StateStoreRedis    = "redis"
	StateStoreDatabase = "database"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Intuit endpoints
const (
	DefaultAuthURL           = "https://appcenter.intuit.com/connect/oauth2"
	DefaultTokenURL          = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	DefaultRevokeURL         = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"
	SandboxAPIBaseURL        = "https://sandbox-quickbooks.api.intuit.com"
	ProductionAPIBaseURL     = "https://quickbooks.api.intuit.com"
	DefaultScope             = "com.intuit.quickbooks.accounting"
	DefaultTokenDocumentPath = "mas-parameters/quickbooksAPI"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Intuit OAuth client
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Environment  string // "sandbox" or "production"
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	UserAgent    string

	// Token lifecycle
	RefreshTimeout         time.Duration // per-attempt budget for token endpoint calls
	DefaultAccessTokenTTL  time.Duration // used when a refresh response omits expires_in
	DefaultRefreshTokenTTL time.Duration // used when a refresh response omits x_refresh_token_expires_in

	// Token store
	TokenStoreDriver   string // "firestore", "database" or "memory"
	TokenDocumentPath  string
	FirestoreProjectID string
	FirestoreCredsFile string

	// Database (token store "database" and state store "database")
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// OAuth state
	StateTTL      time.Duration
	StateStore    string // "memory", "redis" or "database"
	StateRequired bool

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QuickBooks data API
	APIBaseURL       string
	APIMinorVersion  string
	APITimeout       time.Duration
	APIMaxRetries    int
	APIRetryDelay    time.Duration
	APIMaxRetryDelay time.Duration
	CustomerLookback time.Duration

	// Rate limiting
	EnableRateLimit bool
	RateLimitStore  string // "memory" or "redis"
	QBRateLimit     int    // requests per minute on /qb

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Logging and error reporting
	LogLevel          string
	LogFormat         string // "json" or "console"
	SentryDSN         string
	SentryEnvironment string

	// DebugKey guards operator-only endpoints through the x-debug-key header.
	DebugKey string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "qbgate.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	env := strings.ToLower(getEnv("QB_ENVIRONMENT", EnvironmentSandbox))

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		ClientID:     getEnv("QB_CLIENT_ID", ""),
		ClientSecret: getEnv("QB_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("QB_REDIRECT_URI", getEnv("BASE_URL", "http://localhost:8080")+"/qb/auth_token"),
		Scopes:       getEnvSlice("QB_SCOPES", []string{DefaultScope}),
		Environment:  env,
		AuthURL:      getEnv("QB_AUTH_URL", DefaultAuthURL),
		TokenURL:     getEnv("QB_TOKEN_URL", DefaultTokenURL),
		RevokeURL:    getEnv("QB_REVOKE_URL", DefaultRevokeURL),
		UserAgent:    getEnv("QB_USER_AGENT", "qbgate"),

		RefreshTimeout:         getEnvDuration("REFRESH_TIMEOUT", 5*time.Second),
		DefaultAccessTokenTTL:  getEnvDuration("DEFAULT_ACCESS_TOKEN_TTL", time.Hour),
		DefaultRefreshTokenTTL: getEnvDuration("DEFAULT_REFRESH_TOKEN_TTL", 24*time.Hour),

		TokenStoreDriver:   getEnv("TOKEN_STORE_DRIVER", TokenStoreFirestore),
		TokenDocumentPath:  getEnv("TOKEN_DOCUMENT_PATH", DefaultTokenDocumentPath),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", getEnv("GOOGLE_CLOUD_PROJECT", "")),
		FirestoreCredsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		StateTTL:      getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		StateStore:    getEnv("OAUTH_STATE_STORE", StateStoreMemory),
		StateRequired: getEnvBool("OAUTH_STATE_REQUIRED", true),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		APIBaseURL:       getEnv("QB_API_BASE_URL", apiBaseURLFor(env)),
		APIMinorVersion:  getEnv("QB_MINOR_VERSION", "75"),
		APITimeout:       getEnvDuration("QB_API_TIMEOUT", 15*time.Second),
		APIMaxRetries:    getEnvInt("QB_API_MAX_RETRIES", 3),
		APIRetryDelay:    getEnvDuration("QB_API_RETRY_DELAY", 1*time.Second),
		APIMaxRetryDelay: getEnvDuration("QB_API_MAX_RETRY_DELAY", 10*time.Second),
		CustomerLookback: getEnvDuration("CUSTOMER_LOOKBACK", 90*24*time.Hour),

		EnableRateLimit: getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:  getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		QBRateLimit:     getEnvInt("QB_RATE_LIMIT", 60),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", env),

		DebugKey: getEnv("DEBUG_KEY", ""),
	}
}

// Validate checks enumerated settings and required credentials.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("QB_CLIENT_ID and QB_CLIENT_SECRET are required")
	}
	if c.RedirectURI == "" {
		return errors.New("QB_REDIRECT_URI is required")
	}
	if len(c.Scopes) == 0 {
		return errors.New("QB_SCOPES must contain at least one scope")
	}

	switch c.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		return fmt.Errorf(
			"invalid QB_ENVIRONMENT value: %q (must be %q or %q)",
			c.Environment, EnvironmentSandbox, EnvironmentProduction,
		)
	}

	switch c.TokenStoreDriver {
	case TokenStoreFirestore:
		if c.FirestoreProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required when TOKEN_STORE_DRIVER=firestore")
		}
	case TokenStoreDatabase, TokenStoreMemory:
	default:
		return fmt.Errorf(
			"invalid TOKEN_STORE_DRIVER value: %q (must be %q, %q or %q)",
			c.TokenStoreDriver, TokenStoreFirestore, TokenStoreDatabase, TokenStoreMemory,
		)
	}
	if c.TokenDocumentPath == "" {
		return errors.New("TOKEN_DOCUMENT_PATH must not be empty")
	}

	switch c.StateStore {
	case StateStoreMemory, StateStoreRedis, StateStoreDatabase:
	default:
		return fmt.Errorf(
			"invalid OAUTH_STATE_STORE value: %q (must be %q, %q or %q)",
			c.StateStore, StateStoreMemory, StateStoreRedis, StateStoreDatabase,
		)
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive, got %s", c.StateTTL)
	}

	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore, RateLimitStoreMemory, RateLimitStoreRedis,
		)
	}

	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("REFRESH_TIMEOUT must be positive, got %s", c.RefreshTimeout)
	}
	if c.APIMaxRetries < 0 {
		return fmt.Errorf("QB_API_MAX_RETRIES must not be negative, got %d", c.APIMaxRetries)
	}

	return nil
}

// UsesDatabase reports whether any component needs the SQL store.
func (c *Config) UsesDatabase() bool {
	return c.TokenStoreDriver == TokenStoreDatabase || c.StateStore == StateStoreDatabase
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.StateStore == StateStoreRedis ||
		(c.EnableRateLimit && c.RateLimitStore == RateLimitStoreRedis)
}

func apiBaseURLFor(env string) string {
	if env == EnvironmentProduction {
		return ProductionAPIBaseURL
	}
	return SandboxAPIBaseURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
