// Package config provides application configuration management.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration bounds.
const (
	minMaxAttempts      = 1
	maxMaxAttempts      = 10
	minSolverTimeout    = 5 * time.Second
	maxSolverTimeout    = 300 * time.Second
	maxConcurrentSolves = 256
	maxImageBytes       = 10 << 20
	minAPIKeyLength     = 16 // Minimum API key length for security
)

// Solution cache backends.
const (
	CacheNone   = ""
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Logging
	LogLevel string
	LogJSON  bool // Write JSON logs instead of the console format

	// Interception
	MaxAttempts           int    // Resubmissions allowed per request chain
	ChallengeFormPattern  string // Overrides the form action regexp from selectors
	FieldExtractionPolicy string // "fixed" or "heuristic"
	DefaultSubmitEndpoint string // Overrides the fallback submission target

	// CAPTCHA solver settings
	CaptchaSolverTimeout   time.Duration // Per resolve call
	MaxConcurrentSolves    int           // Resolver calls in flight
	Captcha2CaptchaAPIKey  string        // TWOCAPTCHA_API_KEY
	CaptchaCapSolverAPIKey string        // CAPSOLVER_API_KEY
	CaptchaPrimaryProvider string        // "2captcha" or "capsolver"
	AllowPrivateImageHosts bool          // Skip SSRF checks on challenge image URLs
	MaxImageBytes          int           // Largest challenge image downloaded

	// Solution cache
	SolutionCache    string // "", "memory" or "redis"
	SolutionCacheTTL time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Keyword classifier
	KeywordCheckEnabled bool
	KeywordLocale       string

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors

	// Crawl driver
	FetchTimeout time.Duration
	UserAgent    string

	// API Key Authentication
	APIKeyEnabled bool
	APIKey        string

	// Metrics
	PrometheusEnabled bool
	PrometheusPort    int
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost; set HOST=0.0.0.0 to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8192),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		MaxAttempts:           getEnvInt("MAX_ATTEMPTS", 3),
		ChallengeFormPattern:  getEnvString("CHALLENGE_FORM_PATTERN", ""),
		FieldExtractionPolicy: getEnvString("FIELD_EXTRACTION_POLICY", "fixed"),
		DefaultSubmitEndpoint: getEnvString("DEFAULT_SUBMIT_ENDPOINT", ""),

		CaptchaSolverTimeout:   getEnvDuration("CAPTCHA_SOLVER_TIMEOUT", 60*time.Second),
		MaxConcurrentSolves:    getEnvInt("MAX_CONCURRENT_SOLVES", 8),
		Captcha2CaptchaAPIKey:  getEnvString("TWOCAPTCHA_API_KEY", ""),
		CaptchaCapSolverAPIKey: getEnvString("CAPSOLVER_API_KEY", ""),
		CaptchaPrimaryProvider: getEnvString("CAPTCHA_PRIMARY_PROVIDER", "2captcha"),
		AllowPrivateImageHosts: getEnvBool("ALLOW_PRIVATE_IMAGE_HOSTS", false),
		MaxImageBytes:          getEnvInt("MAX_IMAGE_BYTES", 1<<20),

		SolutionCache:    getEnvString("SOLUTION_CACHE", CacheNone),
		SolutionCacheTTL: getEnvDuration("SOLUTION_CACHE_TTL", time.Hour),
		RedisAddr:        getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnvString("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		KeywordCheckEnabled: getEnvBool("KEYWORD_CHECK_ENABLED", false),
		KeywordLocale:       getEnvString("KEYWORD_LOCALE", systemLocale()),

		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		UserAgent:    getEnvString("USER_AGENT", ""),

		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", true),
		PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 9192),
	}
}

// systemLocale returns the message locale from the usual POSIX variables.
func systemLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8192")
		c.Port = 8192
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true, "disabled": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	c.validateInterception()
	c.validateCaptchaConfig()
	c.validateCache()

	if c.FetchTimeout < time.Second {
		log.Warn().Dur("timeout", c.FetchTimeout).Msg("FETCH_TIMEOUT too short, using 30s")
		c.FetchTimeout = 30 * time.Second
	}

	if c.PrometheusEnabled && (c.PrometheusPort < 1 || c.PrometheusPort > 65535) {
		log.Warn().Int("port", c.PrometheusPort).Msg("Invalid Prometheus port, using default 9192")
		c.PrometheusPort = 9192
	}
	if c.PrometheusEnabled && c.PrometheusPort == c.Port {
		log.Error().Int("port", c.Port).Msg("PROMETHEUS_PORT equals PORT, disabling Prometheus server")
		c.PrometheusEnabled = false
	}

	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}
	if c.SelectorsPath != "" {
		if _, err := os.Stat(c.SelectorsPath); err != nil {
			log.Warn().Err(err).Str("path", c.SelectorsPath).Msg("Selectors file not accessible, embedded selectors will be used")
		}
	}

	if c.APIKeyEnabled {
		if c.APIKey == "" {
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		} else if len(c.APIKey) < minAPIKeyLength {
			log.Warn().
				Int("length", len(c.APIKey)).
				Int("min", minAPIKeyLength).
				Msg("API_KEY is shorter than recommended")
		}
	}
}

func (c *Config) validateInterception() {
	if c.MaxAttempts < minMaxAttempts {
		log.Warn().Int("attempts", c.MaxAttempts).Msg("MAX_ATTEMPTS too low, using 1")
		c.MaxAttempts = minMaxAttempts
	} else if c.MaxAttempts > maxMaxAttempts {
		log.Warn().Int("attempts", c.MaxAttempts).Msg("MAX_ATTEMPTS too high, capping at 10")
		c.MaxAttempts = maxMaxAttempts
	}

	if c.ChallengeFormPattern != "" {
		if _, err := regexp.Compile(c.ChallengeFormPattern); err != nil {
			log.Error().Err(err).Str("pattern", c.ChallengeFormPattern).Msg("Invalid CHALLENGE_FORM_PATTERN, using selectors pattern")
			c.ChallengeFormPattern = ""
		}
	}

	switch strings.ToLower(c.FieldExtractionPolicy) {
	case "fixed", "heuristic":
		c.FieldExtractionPolicy = strings.ToLower(c.FieldExtractionPolicy)
	default:
		log.Warn().Str("policy", c.FieldExtractionPolicy).Msg("Invalid FIELD_EXTRACTION_POLICY, using 'fixed'")
		c.FieldExtractionPolicy = "fixed"
	}
}

// validateCaptchaConfig validates CAPTCHA solver configuration.
func (c *Config) validateCaptchaConfig() {
	if c.CaptchaSolverTimeout < minSolverTimeout {
		log.Warn().
			Dur("timeout", c.CaptchaSolverTimeout).
			Dur("min", minSolverTimeout).
			Msg("CAPTCHA_SOLVER_TIMEOUT too short, using minimum")
		c.CaptchaSolverTimeout = minSolverTimeout
	} else if c.CaptchaSolverTimeout > maxSolverTimeout {
		log.Warn().
			Dur("timeout", c.CaptchaSolverTimeout).
			Dur("max", maxSolverTimeout).
			Msg("CAPTCHA_SOLVER_TIMEOUT too long, using maximum")
		c.CaptchaSolverTimeout = maxSolverTimeout
	}

	if c.MaxConcurrentSolves < 1 {
		log.Warn().Int("solves", c.MaxConcurrentSolves).Msg("MAX_CONCURRENT_SOLVES too low, using 1")
		c.MaxConcurrentSolves = 1
	} else if c.MaxConcurrentSolves > maxConcurrentSolves {
		log.Warn().Int("solves", c.MaxConcurrentSolves).Int("max", maxConcurrentSolves).Msg("MAX_CONCURRENT_SOLVES too high, capping to maximum")
		c.MaxConcurrentSolves = maxConcurrentSolves
	}

	if c.MaxImageBytes < 1024 || c.MaxImageBytes > maxImageBytes {
		log.Warn().Int("bytes", c.MaxImageBytes).Msg("MAX_IMAGE_BYTES out of range, using 1MB")
		c.MaxImageBytes = 1 << 20
	}

	validProviders := map[string]bool{"2captcha": true, "capsolver": true}
	if c.CaptchaPrimaryProvider != "" && !validProviders[strings.ToLower(c.CaptchaPrimaryProvider)] {
		log.Warn().
			Str("provider", c.CaptchaPrimaryProvider).
			Msg("Invalid CAPTCHA_PRIMARY_PROVIDER, using '2captcha'")
		c.CaptchaPrimaryProvider = "2captcha"
	}
	c.CaptchaPrimaryProvider = strings.ToLower(c.CaptchaPrimaryProvider)

	if !c.HasCaptchaProviders() {
		log.Warn().Msg("No CAPTCHA solver API keys configured (TWOCAPTCHA_API_KEY or CAPSOLVER_API_KEY) - every challenge will be rejected")
	}

	if c.AllowPrivateImageHosts {
		log.Warn().Msg("ALLOW_PRIVATE_IMAGE_HOSTS enabled - challenge images may be fetched from internal addresses")
	}
}

func (c *Config) validateCache() {
	switch strings.ToLower(c.SolutionCache) {
	case CacheNone, CacheMemory, CacheRedis:
		c.SolutionCache = strings.ToLower(c.SolutionCache)
	default:
		log.Warn().Str("cache", c.SolutionCache).Msg("Invalid SOLUTION_CACHE, disabling cache")
		c.SolutionCache = CacheNone
	}

	if c.SolutionCache != CacheNone && c.SolutionCacheTTL < time.Minute {
		log.Warn().Dur("ttl", c.SolutionCacheTTL).Msg("SOLUTION_CACHE_TTL too short, using 1m")
		c.SolutionCacheTTL = time.Minute
	}

	if c.SolutionCache == CacheRedis && c.RedisAddr == "" {
		log.Warn().Msg("SOLUTION_CACHE is redis but REDIS_ADDR is empty, using memory cache")
		c.SolutionCache = CacheMemory
	}
}

// HasCaptchaProviders returns true if at least one solver API key is set.
func (c *Config) HasCaptchaProviders() bool {
	return c.Captcha2CaptchaAPIKey != "" || c.CaptchaCapSolverAPIKey != ""
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}
