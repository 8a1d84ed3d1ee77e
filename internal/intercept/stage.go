// Package intercept runs the challenge interception cycle for each fetched
// response: detect, bound-check, extract, resolve, build.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/Rorqualx/captchagate/internal/captcha"
	"github.com/Rorqualx/captchagate/internal/inspect"
	"github.com/Rorqualx/captchagate/internal/metrics"
	"github.com/Rorqualx/captchagate/internal/resubmit"
	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxAttempts         = 3
	DefaultSolveTimeout        = 60 * time.Second
	DefaultMaxConcurrentSolves = 8
)

// Inspector finds challenges and their submittable fields.
// *inspect.Inspector implements it.
type Inspector interface {
	DetectChallenge(resp *types.Response) *inspect.Challenge
	ExtractFields(ch *inspect.Challenge) (inspect.Fields, error)
}

// Config configures a Stage.
type Config struct {
	MaxAttempts         int           // Resubmissions allowed per chain
	SolveTimeout        time.Duration // Per resolver call
	MaxConcurrentSolves int64         // Resolver calls in flight across all cycles
}

// Stage is the interception stage. It keeps no per-request state and is
// safe for concurrent use; retry state travels with each request.
type Stage struct {
	inspector    Inspector
	resolver     captcha.Resolver
	builder      *resubmit.Builder
	maxAttempts  int
	solveTimeout time.Duration
	solves       *semaphore.Weighted
}

// New creates a Stage.
func New(inspector Inspector, resolver captcha.Resolver, cfg Config) *Stage {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = DefaultSolveTimeout
	}
	if cfg.MaxConcurrentSolves <= 0 {
		cfg.MaxConcurrentSolves = DefaultMaxConcurrentSolves
	}

	return &Stage{
		inspector:    inspector,
		resolver:     resolver,
		builder:      resubmit.NewBuilder(),
		maxAttempts:  cfg.MaxAttempts,
		solveTimeout: cfg.SolveTimeout,
		solves:       semaphore.NewWeighted(cfg.MaxConcurrentSolves),
	}
}

// MaxAttempts returns the attempt bound.
func (s *Stage) MaxAttempts() int {
	return s.maxAttempts
}

// Process runs one interception cycle for resp, which was fetched by req.
// The resolver is only called for a detected challenge within the attempt
// bound whose fields could be extracted. A resubmission is only returned
// once the whole cycle has completed without the context ending.
func (s *Stage) Process(ctx context.Context, req types.Request, resp *types.Response) Outcome {
	start := time.Now()
	out := s.process(ctx, req, resp)

	metrics.RecordInterception(out.Action.String(), string(out.Reason()), time.Since(start))
	return out
}

func (s *Stage) process(ctx context.Context, req types.Request, resp *types.Response) Outcome {
	ch := s.inspector.DetectChallenge(resp)
	if ch == nil {
		return pass(resp)
	}
	metrics.RecordChallengeDetected()

	pageURL := security.RedactURL(resp.URL.String())
	attempts := req.Retry.Attempts()

	if req.Retry.Exhausted(s.maxAttempts) {
		log.Warn().
			Str("url", pageURL).
			Int("attempts", attempts).
			Int("max_attempts", s.maxAttempts).
			Msg("Too many captcha attempts, surrendering")
		return reject(types.NewAttemptLimitError(pageURL, attempts))
	}

	fields, err := s.inspector.ExtractFields(ch)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Cannot determine captcha form fields")
		return reject(types.NewFieldsError(pageURL, err))
	}
	solutionField, err := ch.Solution.Field()
	if err != nil {
		return reject(types.NewFieldsError(pageURL, err))
	}

	solution, err := s.resolve(ctx, ch.ImageURL.String())
	if ctx.Err() != nil {
		return s.canceled(ctx, pageURL)
	}
	if err != nil {
		log.Error().Err(err).Str("url", pageURL).Msg("Captcha resolver failed")
		return reject(types.NewUnsolvedError(pageURL, err))
	}
	if solution == nil || solution.Text == "" {
		log.Error().Str("url", pageURL).Msg("Captcha page detected, but no solution was proposed")
		return reject(types.NewUnsolvedError(pageURL, nil))
	}

	next, err := s.builder.Build(ch, fields, solutionField, solution.Text, req.Retry)
	if err != nil {
		log.Error().Err(err).Str("url", pageURL).Msg("Cannot build captcha resubmission")
		return reject(types.NewInvalidTargetError(pageURL, err))
	}

	if ctx.Err() != nil {
		return s.canceled(ctx, pageURL)
	}

	log.Info().
		Str("url", pageURL).
		Str("provider", solution.Provider).
		Int("attempt", next.Retry.Attempts()).
		Msg("Submitting captcha solution")

	return retry(next)
}

// resolve calls the resolver under the solve semaphore and timeout. The
// call is abandoned when the timeout fires even if the resolver ignores its
// context. The semaphore slot is held until the resolver actually returns,
// so an abandoned call still counts against MaxConcurrentSolves.
func (s *Stage) resolve(ctx context.Context, imageURL string) (*captcha.Solution, error) {
	if err := s.solves.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.SolvesInFlight.Inc()

	solveCtx, cancel := context.WithTimeout(ctx, s.solveTimeout)
	defer cancel()

	type result struct {
		solution *captcha.Solution
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer s.solves.Release(1)
		defer metrics.SolvesInFlight.Dec()
		sol, err := s.resolver.Resolve(solveCtx, imageURL)
		done <- result{sol, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(solveCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %w", types.ErrResolverTimeout, s.solveTimeout, r.err)
		}
		return r.solution, r.err
	case <-solveCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", types.ErrResolverTimeout, s.solveTimeout)
	}
}

func (s *Stage) canceled(ctx context.Context, pageURL string) Outcome {
	cause := context.Cause(ctx)
	log.Debug().Err(cause).Str("url", pageURL).Msg("Interception canceled")
	return reject(types.NewCanceledError(pageURL, cause))
}
