package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultDBDialect       = "sqlite"
	DefaultDSN             = "file:ledger.db?_pragma=busy_timeout(5000)"
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxIdleTime = 5 * time.Minute
	DefaultConnMaxLifetime = 30 * time.Minute

	DefaultQueryTimeout  = 10 * time.Second
	DefaultMaxResultRows = 1000

	DefaultBigQueryLocation = "US"

	DefaultMaxQueryBytesProcessed = 10_000_000_000 // 10GB

	DefaultElasticsearchMaxRetries = 3
	DefaultElasticsearchIndex      = "ledgerai-audit"

	DefaultLLMProvider       = "anthropic"
	DefaultLLMTimeout        = 30 * time.Second
	DefaultGenerationTimeout = 8 * time.Second
	DefaultSynthesisTimeout  = 8 * time.Second
	DefaultAgentTimeout      = 60 * time.Second
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

var DefaultSensitiveColumns = []string{
	"email", "phone", "ssn", "social_security_number",
	"credit_card", "card_number", "password", "secret", "token",
	"api_key", "access_key", "private_key",
}

var DefaultPIIKeywords = []string{
	"password", "ssn", "social security", "credit card number",
	"pin code", "secret", "private key",
	"access token", "api key",
}
