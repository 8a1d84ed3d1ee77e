package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/captcha"
	"github.com/Rorqualx/captchagate/internal/config"
	"github.com/Rorqualx/captchagate/internal/crawl"
	"github.com/Rorqualx/captchagate/internal/inspect"
	"github.com/Rorqualx/captchagate/internal/intercept"
	"github.com/Rorqualx/captchagate/internal/selectors"
)

// redisPingTimeout bounds the startup connectivity check of the solution cache.
const redisPingTimeout = 5 * time.Second

// app holds the components shared by serve and fetch.
type app struct {
	cfg       *config.Config
	selectors *selectors.Manager
	chain     *captcha.Chain
	stage     *intercept.Stage
	http      *http.Client
	redis     *captcha.RedisCache
}

// newApp wires the interception stage from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	policy, err := inspect.ParsePolicy(cfg.FieldExtractionPolicy)
	if err != nil {
		return nil, err
	}

	mgr, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		return nil, fmt.Errorf("load selectors: %w", err)
	}
	if err := mgr.Override(selectors.Overrides{
		FormActionPattern: cfg.ChallengeFormPattern,
		DefaultEndpoint:   cfg.DefaultSubmitEndpoint,
	}); err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("apply selector overrides: %w", err)
	}

	a := &app{
		cfg:       cfg,
		selectors: mgr,
		http:      crawl.NewHTTPClient(cfg.FetchTimeout),
	}

	opts := inspect.Options{Policy: policy}
	if cfg.KeywordCheckEnabled {
		kc := inspect.NewKeywordClassifier(cfg.KeywordLocale, mgr.Get().Keywords)
		log.Info().
			Str("locale", cfg.KeywordLocale).
			Str("language", kc.Language().String()).
			Msg("Keyword check enabled")
		opts.Classifier = kc
	}

	cache := a.newCache(ctx)

	var providers []captcha.Provider
	if cfg.Captcha2CaptchaAPIKey != "" {
		providers = append(providers, captcha.NewTwoCaptchaSolver(captcha.TwoCaptchaConfig{
			APIKey:  cfg.Captcha2CaptchaAPIKey,
			Timeout: cfg.CaptchaSolverTimeout,
		}))
	}
	if cfg.CaptchaCapSolverAPIKey != "" {
		providers = append(providers, captcha.NewCapSolverSolver(captcha.CapSolverConfig{
			APIKey:  cfg.CaptchaCapSolverAPIKey,
			Timeout: cfg.CaptchaSolverTimeout,
		}))
	}

	a.chain = captcha.NewChain(captcha.ChainConfig{
		Providers: captcha.OrderProviders(cfg.CaptchaPrimaryProvider, providers...),
		Fetcher: captcha.NewImageFetcher(captcha.ImageFetcherConfig{
			Client:            a.http,
			AllowPrivateHosts: cfg.AllowPrivateImageHosts,
			MaxBytes:          int64(cfg.MaxImageBytes),
			UserAgent:         cfg.UserAgent,
		}),
		Cache:   cache,
		Metrics: captcha.NewMetrics(),
	})

	a.stage = intercept.New(inspect.New(mgr, opts), a.chain, intercept.Config{
		MaxAttempts:         cfg.MaxAttempts,
		SolveTimeout:        cfg.CaptchaSolverTimeout,
		MaxConcurrentSolves: int64(cfg.MaxConcurrentSolves),
	})

	log.Info().
		Strs("providers", a.chain.ProviderNames()).
		Str("policy", policy.String()).
		Int("max_attempts", a.stage.MaxAttempts()).
		Str("cache", cfg.SolutionCache).
		Msg("Interception stage ready")

	return a, nil
}

// newCache returns the configured solution cache. An unreachable Redis
// falls back to the in-memory cache.
func (a *app) newCache(ctx context.Context) captcha.Cache {
	switch a.cfg.SolutionCache {
	case config.CacheMemory:
		return captcha.NewMemoryCache(a.cfg.SolutionCacheTTL)
	case config.CacheRedis:
		rc := captcha.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		}), a.cfg.SolutionCacheTTL)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", a.cfg.RedisAddr).Msg("Redis unreachable, using in-memory solution cache")
			_ = rc.Close()
			return captcha.NewMemoryCache(a.cfg.SolutionCacheTTL)
		}
		a.redis = rc
		return rc
	default:
		return nil
	}
}

// Close releases the selectors watcher and the Redis connection.
func (a *app) Close() {
	if err := a.selectors.Close(); err != nil {
		log.Error().Err(err).Msg("Selectors manager close error")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error().Err(err).Msg("Redis close error")
		}
	}
}
