package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnv = []string{
	"HOST", "PORT", "LOG_LEVEL", "LOG_JSON",
	"MAX_ATTEMPTS", "CHALLENGE_FORM_PATTERN", "FIELD_EXTRACTION_POLICY", "DEFAULT_SUBMIT_ENDPOINT",
	"CAPTCHA_SOLVER_TIMEOUT", "MAX_CONCURRENT_SOLVES", "TWOCAPTCHA_API_KEY", "CAPSOLVER_API_KEY",
	"CAPTCHA_PRIMARY_PROVIDER", "ALLOW_PRIVATE_IMAGE_HOSTS", "MAX_IMAGE_BYTES",
	"SOLUTION_CACHE", "SOLUTION_CACHE_TTL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"KEYWORD_CHECK_ENABLED", "KEYWORD_LOCALE", "SELECTORS_PATH", "SELECTORS_HOT_RELOAD",
	"FETCH_TIMEOUT", "USER_AGENT", "API_KEY_ENABLED", "API_KEY",
	"PROMETHEUS_ENABLED", "PROMETHEUS_PORT",
}

// clearEnv empties every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192, got %d", cfg.Port)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts 3, got %d", cfg.MaxAttempts)
	}
	if cfg.FieldExtractionPolicy != "fixed" {
		t.Errorf("Expected default policy 'fixed', got %q", cfg.FieldExtractionPolicy)
	}
	if cfg.CaptchaSolverTimeout != 60*time.Second {
		t.Errorf("Expected default solver timeout 60s, got %v", cfg.CaptchaSolverTimeout)
	}
	if cfg.MaxConcurrentSolves != 8 {
		t.Errorf("Expected default concurrent solves 8, got %d", cfg.MaxConcurrentSolves)
	}
	if cfg.CaptchaPrimaryProvider != "2captcha" {
		t.Errorf("Expected default provider '2captcha', got %q", cfg.CaptchaPrimaryProvider)
	}
	if cfg.SolutionCache != CacheNone {
		t.Errorf("Expected solution cache disabled, got %q", cfg.SolutionCache)
	}
	if !cfg.PrometheusEnabled || cfg.PrometheusPort != 9192 {
		t.Errorf("Expected Prometheus enabled on 9192, got %v/%d", cfg.PrometheusEnabled, cfg.PrometheusPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.HasCaptchaProviders() {
		t.Error("Expected no providers by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("FIELD_EXTRACTION_POLICY", "heuristic")
	t.Setenv("CAPTCHA_SOLVER_TIMEOUT", "90s")
	t.Setenv("TWOCAPTCHA_API_KEY", "abc")
	t.Setenv("KEYWORD_CHECK_ENABLED", "true")
	t.Setenv("KEYWORD_LOCALE", "de_DE.UTF-8")
	t.Setenv("SOLUTION_CACHE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg := Load()

	if cfg.Port != 9000 || cfg.MaxAttempts != 5 {
		t.Errorf("Port/MaxAttempts = %d/%d", cfg.Port, cfg.MaxAttempts)
	}
	if cfg.FieldExtractionPolicy != "heuristic" {
		t.Errorf("FieldExtractionPolicy = %q", cfg.FieldExtractionPolicy)
	}
	if cfg.CaptchaSolverTimeout != 90*time.Second {
		t.Errorf("CaptchaSolverTimeout = %v", cfg.CaptchaSolverTimeout)
	}
	if !cfg.HasCaptchaProviders() {
		t.Error("Expected providers configured")
	}
	if !cfg.KeywordCheckEnabled || cfg.KeywordLocale != "de_DE.UTF-8" {
		t.Errorf("Keyword settings = %v/%q", cfg.KeywordCheckEnabled, cfg.KeywordLocale)
	}
	if cfg.SolutionCache != CacheRedis || cfg.RedisAddr != "cache:6379" {
		t.Errorf("Cache settings = %q/%q", cfg.SolutionCache, cfg.RedisAddr)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("ALLOW_PRIVATE_IMAGE_HOSTS", "maybe")
	t.Setenv("CAPTCHA_SOLVER_TIMEOUT", "-5s")

	cfg := Load()

	if cfg.Port != 8192 {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.AllowPrivateImageHosts {
		t.Error("AllowPrivateImageHosts should fall back to false")
	}
	if cfg.CaptchaSolverTimeout != 60*time.Second {
		t.Errorf("CaptchaSolverTimeout = %v, want default", cfg.CaptchaSolverTimeout)
	}
}

func TestKeywordLocaleFromSystem(t *testing.T) {
	clearEnv(t)
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "fr_FR.UTF-8")

	if got := Load().KeywordLocale; got != "fr_FR.UTF-8" {
		t.Errorf("KeywordLocale = %q, want LANG value", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		check  func(*testing.T, *Config)
	}{
		{
			name:   "attempts too low",
			modify: func(c *Config) { c.MaxAttempts = 0 },
			check: func(t *testing.T, c *Config) {
				if c.MaxAttempts != 1 {
					t.Errorf("MaxAttempts = %d, want 1", c.MaxAttempts)
				}
			},
		},
		{
			name:   "attempts too high",
			modify: func(c *Config) { c.MaxAttempts = 50 },
			check: func(t *testing.T, c *Config) {
				if c.MaxAttempts != 10 {
					t.Errorf("MaxAttempts = %d, want 10", c.MaxAttempts)
				}
			},
		},
		{
			name:   "solver timeout too short",
			modify: func(c *Config) { c.CaptchaSolverTimeout = time.Second },
			check: func(t *testing.T, c *Config) {
				if c.CaptchaSolverTimeout != 5*time.Second {
					t.Errorf("CaptchaSolverTimeout = %v, want 5s", c.CaptchaSolverTimeout)
				}
			},
		},
		{
			name:   "solver timeout too long",
			modify: func(c *Config) { c.CaptchaSolverTimeout = time.Hour },
			check: func(t *testing.T, c *Config) {
				if c.CaptchaSolverTimeout != 300*time.Second {
					t.Errorf("CaptchaSolverTimeout = %v, want 300s", c.CaptchaSolverTimeout)
				}
			},
		},
		{
			name:   "invalid policy",
			modify: func(c *Config) { c.FieldExtractionPolicy = "guess" },
			check: func(t *testing.T, c *Config) {
				if c.FieldExtractionPolicy != "fixed" {
					t.Errorf("FieldExtractionPolicy = %q, want fixed", c.FieldExtractionPolicy)
				}
			},
		},
		{
			name:   "policy case folded",
			modify: func(c *Config) { c.FieldExtractionPolicy = "Heuristic" },
			check: func(t *testing.T, c *Config) {
				if c.FieldExtractionPolicy != "heuristic" {
					t.Errorf("FieldExtractionPolicy = %q, want heuristic", c.FieldExtractionPolicy)
				}
			},
		},
		{
			name:   "invalid form pattern",
			modify: func(c *Config) { c.ChallengeFormPattern = "([" },
			check: func(t *testing.T, c *Config) {
				if c.ChallengeFormPattern != "" {
					t.Errorf("ChallengeFormPattern = %q, want empty", c.ChallengeFormPattern)
				}
			},
		},
		{
			name:   "invalid provider",
			modify: func(c *Config) { c.CaptchaPrimaryProvider = "anticaptcha" },
			check: func(t *testing.T, c *Config) {
				if c.CaptchaPrimaryProvider != "2captcha" {
					t.Errorf("CaptchaPrimaryProvider = %q", c.CaptchaPrimaryProvider)
				}
			},
		},
		{
			name:   "provider case folded",
			modify: func(c *Config) { c.CaptchaPrimaryProvider = "CapSolver" },
			check: func(t *testing.T, c *Config) {
				if c.CaptchaPrimaryProvider != "capsolver" {
					t.Errorf("CaptchaPrimaryProvider = %q", c.CaptchaPrimaryProvider)
				}
			},
		},
		{
			name:   "concurrency bounds",
			modify: func(c *Config) { c.MaxConcurrentSolves = 0 },
			check: func(t *testing.T, c *Config) {
				if c.MaxConcurrentSolves != 1 {
					t.Errorf("MaxConcurrentSolves = %d, want 1", c.MaxConcurrentSolves)
				}
			},
		},
		{
			name:   "invalid cache",
			modify: func(c *Config) { c.SolutionCache = "memcached" },
			check: func(t *testing.T, c *Config) {
				if c.SolutionCache != CacheNone {
					t.Errorf("SolutionCache = %q, want disabled", c.SolutionCache)
				}
			},
		},
		{
			name:   "redis without address",
			modify: func(c *Config) { c.SolutionCache = "redis"; c.RedisAddr = "" },
			check: func(t *testing.T, c *Config) {
				if c.SolutionCache != CacheMemory {
					t.Errorf("SolutionCache = %q, want memory", c.SolutionCache)
				}
			},
		},
		{
			name:   "prometheus port collision",
			modify: func(c *Config) { c.PrometheusPort = c.Port },
			check: func(t *testing.T, c *Config) {
				if c.PrometheusEnabled {
					t.Error("Prometheus should be disabled on port collision")
				}
			},
		},
		{
			name:   "hot reload without path",
			modify: func(c *Config) { c.SelectorsHotReload = true },
			check: func(t *testing.T, c *Config) {
				if c.SelectorsHotReload {
					t.Error("SelectorsHotReload should be disabled without a path")
				}
			},
		},
		{
			name:   "invalid log level",
			modify: func(c *Config) { c.LogLevel = "verbose" },
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "info" {
					t.Errorf("LogLevel = %q, want info", c.LogLevel)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.modify(cfg)
			cfg.Validate()
			tt.check(t, cfg)
		})
	}
}

func TestValidate_SelectorsPathExists(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	if err := os.WriteFile(path, []byte("solution_field: q\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.SelectorsPath = path
	cfg.SelectorsHotReload = true
	cfg.Validate()

	if !cfg.SelectorsHotReload || cfg.SelectorsPath != path {
		t.Error("valid selectors settings must be kept")
	}
}
