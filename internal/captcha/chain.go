package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/metrics"
	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
)

// Chain is the default Resolver. It downloads the image once and asks each
// configured provider in turn.
type Chain struct {
	providers []Provider
	fetcher   *ImageFetcher
	cache     Cache
	metrics   *Metrics
}

// ChainConfig contains configuration for the Chain.
type ChainConfig struct {
	Providers []Provider    // Providers in priority order
	Fetcher   *ImageFetcher // Optional; a default fetcher is used otherwise
	Cache     Cache         // Optional answer cache
	Metrics   *Metrics      // Optional usage tracking
}

// NewChain creates a Chain.
func NewChain(cfg ChainConfig) *Chain {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewImageFetcher(ImageFetcherConfig{})
	}
	return &Chain{
		providers: cfg.Providers,
		fetcher:   fetcher,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
	}
}

// OrderProviders moves the provider named primary to the front and keeps
// the others in their given order.
func OrderProviders(primary string, providers ...Provider) []Provider {
	ordered := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if strings.EqualFold(p.Name(), primary) {
			ordered = append(ordered, p)
		}
	}
	for _, p := range providers {
		if !strings.EqualFold(p.Name(), primary) {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// HasProviders returns true if at least one provider is configured.
func (c *Chain) HasProviders() bool {
	for _, p := range c.providers {
		if p.IsConfigured() {
			return true
		}
	}
	return false
}

// ProviderNames returns the names of the configured providers in order.
func (c *Chain) ProviderNames() []string {
	var names []string
	for _, p := range c.providers {
		if p.IsConfigured() {
			names = append(names, p.Name())
		}
	}
	return names
}

// Resolve implements Resolver. It returns nil, nil when every provider
// reported the image unsolvable or returned an empty answer.
func (c *Chain) Resolve(ctx context.Context, imageURL string) (*Solution, error) {
	if !c.HasProviders() {
		return nil, types.ErrCaptchaNoProviders
	}

	start := time.Now()
	redacted := security.RedactURL(imageURL)

	img, err := c.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	digest := img.Digest()

	if text, ok := c.cached(ctx, digest); ok {
		log.Info().
			Str("image_url", redacted).
			Msg("Captcha answer served from cache")
		return &Solution{Text: text, Provider: "cache", SolveTime: time.Since(start)}, nil
	}

	req := &ImageRequest{Body: img.Base64(), ImageURL: imageURL}

	var lastErr error
	for _, provider := range c.providers {
		if !provider.IsConfigured() {
			continue
		}
		name := provider.Name()

		providerStart := time.Now()
		result, err := provider.SolveImage(ctx, req)
		providerDuration := time.Since(providerStart)

		switch {
		case err == nil && result != nil && strings.TrimSpace(result.Text) != "":
			log.Info().
				Str("provider", name).
				Str("task_id", result.TaskID).
				Dur("solve_time", result.SolveTime).
				Float64("cost", result.Cost).
				Msg("External solver succeeded")

			c.recordSolved(name, result.Cost, providerDuration)
			c.store(ctx, digest, result.Text)

			return &Solution{
				Text:      strings.TrimSpace(result.Text),
				Provider:  name,
				SolveTime: time.Since(start),
				Cost:      result.Cost,
			}, nil

		case err == nil, errors.Is(err, types.ErrCaptchaUnsolvable):
			log.Warn().
				Str("provider", name).
				Str("image_url", redacted).
				Msg("Provider could not read captcha image, trying next provider")
			c.recordUnsolvable(name, providerDuration)

		default:
			c.recordFailure(name, err, providerDuration)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().
				Err(err).
				Str("provider", name).
				Dur("duration", providerDuration).
				Msg("External solver failed, trying next provider")
			lastErr = err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return nil, nil
}

// Balances queries every configured provider and caches the results in Metrics.
func (c *Chain) Balances(ctx context.Context) map[string]float64 {
	balances := make(map[string]float64)
	for _, p := range c.providers {
		if !p.IsConfigured() {
			continue
		}
		balance, err := p.Balance(ctx)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Name()).Msg("Failed to fetch solver balance")
			continue
		}
		balances[p.Name()] = balance
		if c.metrics != nil {
			c.metrics.UpdateBalance(p.Name(), balance)
		}
	}
	return balances
}

// GetMetrics returns the current metrics for all providers.
func (c *Chain) GetMetrics() map[string]any {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.ToJSON()
}

func (c *Chain) cached(ctx context.Context, digest string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	text, ok, err := c.cache.Get(ctx, digest)
	if err != nil {
		log.Warn().Err(err).Msg("Captcha answer cache lookup failed")
		return "", false
	}
	return text, ok
}

func (c *Chain) store(ctx context.Context, digest, text string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, digest, strings.TrimSpace(text)); err != nil {
		log.Warn().Err(err).Msg("Failed to cache captcha answer")
	}
}

func (c *Chain) recordSolved(provider string, cost float64, d time.Duration) {
	metrics.RecordResolve(provider, "solved", d)
	if c.metrics != nil {
		c.metrics.RecordSolved(provider, cost, d)
	}
}

func (c *Chain) recordUnsolvable(provider string, d time.Duration) {
	metrics.RecordResolve(provider, "unsolvable", d)
	if c.metrics != nil {
		c.metrics.RecordUnsolvable(provider, d)
	}
}

func (c *Chain) recordFailure(provider string, err error, d time.Duration) {
	metrics.RecordResolve(provider, "error", d)
	if c.metrics != nil {
		c.metrics.RecordFailure(provider, err, d)
	}
}
