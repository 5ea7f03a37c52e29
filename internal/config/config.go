package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Ingest    Ingest    `mapstructure:"ingest"`
	AI        AI        `mapstructure:"ai"`
	Media     Media     `mapstructure:"media"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Cache     Cache     `mapstructure:"cache"`
	Admin     Admin     `mapstructure:"admin"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug     bool   `mapstructure:"debug"`
	StateCode string `mapstructure:"state_code"` // Home state for classification, default KY
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BotScoreMin  int           `mapstructure:"bot_score_min"`
	CORS         CORS          `mapstructure:"cors"`
}

// CORS holds CORS configuration
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database holds Postgres configuration
type Database struct {
	URL string `mapstructure:"url"`
}

// Redis holds key-value cache configuration
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Ingest holds feed ingestion configuration
type Ingest struct {
	Interval          time.Duration `mapstructure:"interval"`           // Scheduler tick
	Concurrency       int           `mapstructure:"concurrency"`        // Global feed fan-out, default 8
	ListingTimeout    time.Duration `mapstructure:"listing_timeout"`    // Feed/listing-page fetch
	ArticleTimeout    time.Duration `mapstructure:"article_timeout"`    // Individual article fetch
	MetaTimeout       time.Duration `mapstructure:"meta_timeout"`       // Metadata-only fetch
	MetaCandidates    int           `mapstructure:"meta_candidates"`    // Scraper candidates enriched per page
	MetaConcurrency   int           `mapstructure:"meta_concurrency"`   // Inner fan-out for meta fetches
	UserAgent         string        `mapstructure:"user_agent"`
	KYOnly            bool          `mapstructure:"ky_only"` // Drop items that fail the KY relevance gate
}

// AI holds summarization backend configuration
type AI struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

// Media holds object-store configuration for the image mirror
type Media struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	MaxBytes  int64  `mapstructure:"max_bytes"`
}

// RateLimit holds per-bucket request caps per minute
type RateLimit struct {
	Enabled     bool `mapstructure:"enabled"`
	ReadPerMin  int  `mapstructure:"read_per_min"`
	WritePerMin int  `mapstructure:"write_per_min"`
	AdminPerMin int  `mapstructure:"admin_per_min"`
}

// Cache holds TTL configuration for the KV cache
type Cache struct {
	APITTL        time.Duration `mapstructure:"api_ttl"`         // Cached JSON envelope TTL
	StaleWindow   time.Duration `mapstructure:"stale_window"`    // stale-while-revalidate window
	SummaryTTL    time.Duration `mapstructure:"summary_ttl"`     // Cached summary blob TTL
	ErrorEventTTL time.Duration `mapstructure:"error_event_ttl"` // Bounded error-log retention
}

// Admin holds admin identity configuration
type Admin struct {
	Emails       []string `mapstructure:"emails"`
	EditorEmails []string `mapstructure:"editor_emails"`
	Token        string   `mapstructure:"token"` // Fallback bearer for admin write paths
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from file, environment and defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".kynews")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached global config. Test helper.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.state_code", "KY")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.bot_score_min", 18)
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Ingest defaults
	viper.SetDefault("ingest.interval", "5m")
	viper.SetDefault("ingest.concurrency", 8)
	viper.SetDefault("ingest.listing_timeout", "15s")
	viper.SetDefault("ingest.article_timeout", "12s")
	viper.SetDefault("ingest.meta_timeout", "9s")
	viper.SetDefault("ingest.meta_candidates", 16)
	viper.SetDefault("ingest.meta_concurrency", 4)
	viper.SetDefault("ingest.user_agent", "KYNews Aggregator/1.0")
	viper.SetDefault("ingest.ky_only", false)

	// AI defaults
	viper.SetDefault("ai.model", "gemini-2.0-flash")
	viper.SetDefault("ai.timeout", "60s")
	viper.SetDefault("ai.max_tokens", 900)
	viper.SetDefault("ai.temperature", 0.2)

	// Media defaults
	viper.SetDefault("media.region", "auto")
	viper.SetDefault("media.max_bytes", 10*1024*1024)

	// Rate-limit defaults
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.read_per_min", 240)
	viper.SetDefault("rate_limit.write_per_min", 60)
	viper.SetDefault("rate_limit.admin_per_min", 90)

	// Cache defaults
	viper.SetDefault("cache.api_ttl", "120s")
	viper.SetDefault("cache.stale_window", "300s")
	viper.SetDefault("cache.summary_ttl", "720h") // 30 days
	viper.SetDefault("cache.error_event_ttl", "720h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables maps the recognized environment variables onto
// config keys, accepting the upstream names where they differ from the
// viper key scheme.
func bindEnvironmentVariables() {
	bindEnvKeys("database.url", []string{"DATABASE_URL", "POSTGRES_URL"})
	bindEnvKeys("redis.addr", []string{"REDIS_ADDR"})
	bindEnvKeys("redis.password", []string{"REDIS_PASSWORD"})

	bindEnvKeys("server.bot_score_min", []string{"BOT_SCORE_MIN"})

	bindEnvKeys("cache.api_ttl", []string{"API_CACHE_TTL_SECONDS"})
	bindEnvKeys("cache.summary_ttl", []string{"SUMMARY_CACHE_TTL_SECONDS"})
	bindEnvKeys("cache.error_event_ttl", []string{"ERROR_EVENT_TTL_DAYS"})

	bindEnvKeys("rate_limit.read_per_min", []string{"RATE_LIMIT_READ_PER_MIN"})
	bindEnvKeys("rate_limit.write_per_min", []string{"RATE_LIMIT_WRITE_PER_MIN"})
	bindEnvKeys("rate_limit.admin_per_min", []string{"RATE_LIMIT_ADMIN_PER_MIN"})

	bindEnvKeys("ai.api_key", []string{"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"})
	bindEnvKeys("ai.model", []string{"AI_MODEL"})

	bindEnvKeys("admin.emails", []string{"ADMIN_EMAILS"})
	bindEnvKeys("admin.editor_emails", []string{"EDITOR_EMAILS"})
	bindEnvKeys("admin.token", []string{"ADMIN_TOKEN"})

	bindEnvKeys("media.bucket", []string{"MEDIA_BUCKET"})
	bindEnvKeys("media.endpoint", []string{"MEDIA_S3_ENDPOINT"})
	bindEnvKeys("media.access_key", []string{"MEDIA_S3_KEY"})
	bindEnvKeys("media.secret_key", []string{"MEDIA_S3_SECRET"})
}

// bindEnvKeys binds a config key to the first set environment variable
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(configKey, normalizeEnvValue(configKey, value))
			return
		}
	}
}

// normalizeEnvValue converts bare-number TTL env vars into durations and
// splits CSV identity lists, matching the upstream contract where
// *_SECONDS and *_DAYS variables are plain integers.
func normalizeEnvValue(configKey, value string) interface{} {
	switch configKey {
	case "cache.api_ttl", "cache.summary_ttl":
		if secs, err := time.ParseDuration(value + "s"); err == nil {
			return secs
		}
	case "cache.error_event_ttl":
		if days, err := time.ParseDuration(value + "h"); err == nil {
			return days * 24
		}
	case "admin.emails", "admin.editor_emails":
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, strings.ToLower(p))
			}
		}
		return out
	}
	return value
}

// validateConfig performs basic sanity checks
func validateConfig(config *Config) error {
	if config.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be at least 1")
	}
	if config.RateLimit.ReadPerMin < 1 || config.RateLimit.WritePerMin < 1 || config.RateLimit.AdminPerMin < 1 {
		return fmt.Errorf("rate_limit caps must be at least 1")
	}
	if config.App.StateCode == "" || len(config.App.StateCode) != 2 {
		return fmt.Errorf("app.state_code must be a two-letter state code")
	}
	return nil
}
