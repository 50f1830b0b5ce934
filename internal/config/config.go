package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	EnableAuth       bool   `json:"enable_auth"`
	JWTSecret        string `json:"jwt_secret"`
	AllowOwnerHeader bool   `json:"allow_owner_header"` // trust X-Owner-ID when auth is off

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Ledger database
	DBDialect       string   `json:"db_dialect"` // postgres, sqlite or bigquery
	DSN             string   `json:"dsn"`
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxIdleTime Duration `json:"conn_max_idle_time"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
	QueryTimeout    Duration `json:"query_timeout"`
	MaxResultRows   int      `json:"max_result_rows"`

	// BigQuery
	GCPProjectID                 string `json:"gcp_project_id"`
	BigQueryDataset              string `json:"bigquery_dataset"`
	GoogleApplicationCredentials string `json:"google_application_credentials"`
	BigQueryLocation             string `json:"bigquery_location"`
	MaxQueryBytesProcessed       int64  `json:"max_query_bytes_processed"`

	// Security
	EnableDataMasking  bool     `json:"enable_data_masking"`
	EnablePIIDetection bool     `json:"enable_pii_detection"`
	SensitiveColumns   []string `json:"sensitive_columns"`
	PIIKeywords        []string `json:"pii_keywords"`
	EnableAuditLogging bool     `json:"enable_audit_logging"`

	// Elasticsearch audit sink
	ElasticsearchEnabled     bool     `json:"elasticsearch_enabled"`
	ElasticsearchAddresses   []string `json:"elasticsearch_addresses"`
	ElasticsearchUser        string   `json:"elasticsearch_user"`
	ElasticsearchPassword    string   `json:"elasticsearch_password"`
	ElasticsearchVerifyCerts bool     `json:"elasticsearch_verify_certs"`
	ElasticsearchMaxRetries  int      `json:"elasticsearch_max_retries"`
	ElasticsearchIndex       string   `json:"elasticsearch_index"`

	// AI / LLM
	LLMProvider       string   `json:"llm_provider"`
	LLMAPIKey         string   `json:"llm_api_key"`
	LLMModel          string   `json:"llm_model"`
	LLMBaseURL        string   `json:"llm_base_url"` // override for a compatible proxy
	LLMTimeout        Duration `json:"llm_timeout"`
	GenerationTimeout Duration `json:"generation_timeout"`
	SynthesisTimeout  Duration `json:"synthesis_timeout"`
	AgentTimeout      Duration `json:"agent_timeout"`
	EnableAgent       bool     `json:"enable_agent"`
	AgentAutoRoute    bool     `json:"agent_auto_route"`
}

// Duration reads either a Go duration string ("8s") or whole seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	for _, f := range []string{".env", "../.env"} {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}

	cfg := &Config{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		Environment:              DefaultEnvironment,
		APIPrefix:                DefaultAPIPrefix,
		LogLevel:                 DefaultLogLevel,
		CORSOrigins:              DefaultCORSOrigins,
		EnableAuth:               true,
		RateLimitPerMinute:       DefaultRateLimitPerMinute,
		DBDialect:                DefaultDBDialect,
		DSN:                      DefaultDSN,
		MaxOpenConns:             DefaultMaxOpenConns,
		MaxIdleConns:             DefaultMaxIdleConns,
		ConnMaxIdleTime:          Duration(DefaultConnMaxIdleTime),
		ConnMaxLifetime:          Duration(DefaultConnMaxLifetime),
		QueryTimeout:             Duration(DefaultQueryTimeout),
		MaxResultRows:            DefaultMaxResultRows,
		BigQueryLocation:         DefaultBigQueryLocation,
		MaxQueryBytesProcessed:   DefaultMaxQueryBytesProcessed,
		EnableDataMasking:        true,
		EnablePIIDetection:       true,
		SensitiveColumns:         DefaultSensitiveColumns,
		PIIKeywords:              DefaultPIIKeywords,
		EnableAuditLogging:       true,
		ElasticsearchVerifyCerts: true,
		ElasticsearchMaxRetries:  DefaultElasticsearchMaxRetries,
		ElasticsearchIndex:       DefaultElasticsearchIndex,
		LLMProvider:              DefaultLLMProvider,
		LLMTimeout:               Duration(DefaultLLMTimeout),
		GenerationTimeout:        Duration(DefaultGenerationTimeout),
		SynthesisTimeout:         Duration(DefaultSynthesisTimeout),
		AgentTimeout:             Duration(DefaultAgentTimeout),
		EnableAgent:              true,
	}

	// Load from JSON config file if specified
	if path := getEnv("LEDGERAI_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Environment overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDialect {
	case "postgres", "sqlite":
		if c.DSN == "" {
			return fmt.Errorf("LEDGERAI_DSN is required for %s", c.DBDialect)
		}
	case "bigquery":
		if c.GCPProjectID == "" || c.BigQueryDataset == "" {
			return fmt.Errorf("GCP_PROJECT_ID and BIGQUERY_DATASET are required for bigquery")
		}
	default:
		return fmt.Errorf("unsupported db dialect %q", c.DBDialect)
	}
	if c.EnableAuth && c.JWTSecret == "" {
		return fmt.Errorf("LEDGERAI_JWT_SECRET is required when auth is enabled")
	}
	if c.ElasticsearchEnabled && len(c.ElasticsearchAddresses) == 0 {
		return fmt.Errorf("ELASTICSEARCH_ADDRESSES is required when elasticsearch is enabled")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := getEnv("LEDGERAI_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("LEDGERAI_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("LEDGERAI_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("LEDGERAI_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("LEDGERAI_CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = parseBool(v)
	}
	if v := getEnv("LEDGERAI_JWT_SECRET", ""); v != "" {
		cfg.JWTSecret = v
	}
	if v := getEnv("ALLOW_OWNER_HEADER", ""); v != "" {
		cfg.AllowOwnerHeader = parseBool(v)
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}

	if v := getEnv("LEDGERAI_DB_DIALECT", ""); v != "" {
		cfg.DBDialect = strings.ToLower(v)
	}
	if v := getEnv("LEDGERAI_DSN", ""); v != "" {
		cfg.DSN = v
	}
	if v := getEnv("LEDGERAI_MAX_OPEN_CONNS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpenConns = n
		}
	}
	if v := getEnv("LEDGERAI_MAX_RESULT_ROWS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxResultRows = n
		}
	}

	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("BIGQUERY_DATASET", ""); v != "" {
		cfg.BigQueryDataset = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("BIGQUERY_LOCATION", ""); v != "" {
		cfg.BigQueryLocation = v
	}
	if v := getEnv("MAX_QUERY_BYTES_PROCESSED", ""); v != "" {
		if b, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxQueryBytesProcessed = b
		}
	}

	if v := getEnv("ENABLE_AUDIT_LOGGING", ""); v != "" {
		cfg.EnableAuditLogging = parseBool(v)
	}
	if v := getEnv("ENABLE_DATA_MASKING", ""); v != "" {
		cfg.EnableDataMasking = parseBool(v)
	}
	if v := getEnv("ENABLE_PII_DETECTION", ""); v != "" {
		cfg.EnablePIIDetection = parseBool(v)
	}

	if v := getEnv("ELASTICSEARCH_ENABLED", ""); v != "" {
		cfg.ElasticsearchEnabled = parseBool(v)
	}
	if v := getEnv("ELASTICSEARCH_ADDRESSES", ""); v != "" {
		cfg.ElasticsearchAddresses = splitList(v)
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("ELASTICSEARCH_VERIFY_CERTS", ""); v != "" {
		cfg.ElasticsearchVerifyCerts = parseBool(v)
	}
	if v := getEnv("ELASTICSEARCH_INDEX", ""); v != "" {
		cfg.ElasticsearchIndex = v
	}

	if v := getEnv("LLM_PROVIDER", ""); v != "" {
		cfg.LLMProvider = strings.ToLower(v)
	}
	if v := getEnv("LLM_API_KEY", ""); v != "" {
		cfg.LLMAPIKey = v
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = providerKeyFromEnv(cfg.LLMProvider)
	}
	if v := getEnv("LLM_MODEL", ""); v != "" {
		cfg.LLMModel = v
	}
	if v := getEnv("LLM_BASE_URL", ""); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := getEnv("ENABLE_AGENT", ""); v != "" {
		cfg.EnableAgent = parseBool(v)
	}
	if v := getEnv("AGENT_AUTO_ROUTE", ""); v != "" {
		cfg.AgentAutoRoute = parseBool(v)
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"LEDGERAI_CONN_MAX_IDLE_TIME", &cfg.ConnMaxIdleTime},
		{"LEDGERAI_CONN_MAX_LIFETIME", &cfg.ConnMaxLifetime},
		{"LEDGERAI_QUERY_TIMEOUT", &cfg.QueryTimeout},
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
		{"GENERATION_TIMEOUT", &cfg.GenerationTimeout},
		{"SYNTHESIS_TIMEOUT", &cfg.SynthesisTimeout},
		{"AGENT_TIMEOUT", &cfg.AgentTimeout},
	}
	for _, d := range durations {
		v := getEnv(d.key, "")
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = Duration(parsed)
	}
	return nil
}

// providerKeyFromEnv falls back to the vendor's conventional variable.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return getEnv("ANTHROPIC_API_KEY", "")
	case "openai":
		return getEnv("OPENAI_API_KEY", "")
	case "gemini":
		return getEnv("GEMINI_API_KEY", "")
	}
	return ""
}

// parseDuration accepts "8s", "1m30s" or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
