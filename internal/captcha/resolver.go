// Package captcha resolves image challenges through external solving
// services. Providers are tried in order until one returns an answer.
package captcha

import (
	"context"
	"time"
)

// Solution is a proposed answer for a challenge image.
type Solution struct {
	Text      string        // The characters to submit
	Provider  string        // Which provider answered, or "cache"
	SolveTime time.Duration // How long the solve took
	Cost      float64       // Cost in USD for this solve
}

// Resolver converts an image URL into a proposed answer.
// A nil Solution with a nil error means no answer was found; that is a
// normal outcome, not a failure.
type Resolver interface {
	Resolve(ctx context.Context, imageURL string) (*Solution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, imageURL string) (*Solution, error)

// Resolve calls f(ctx, imageURL).
func (f ResolverFunc) Resolve(ctx context.Context, imageURL string) (*Solution, error) {
	return f(ctx, imageURL)
}

// Provider is an external image-to-text solving service.
type Provider interface {
	// Name returns the provider name (e.g., "2captcha", "capsolver").
	Name() string

	// SolveImage submits an image and waits for its text.
	SolveImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)

	// Balance retrieves the current account balance from the provider.
	Balance(ctx context.Context) (float64, error)

	// IsConfigured returns true if the provider has valid API credentials.
	IsConfigured() bool
}

// ImageRequest contains the parameters needed to solve an image challenge.
type ImageRequest struct {
	Body          string // Base64 encoded image
	ImageURL      string // Where the image was fetched from
	CaseSensitive bool
}

// ImageResult is a provider's answer.
type ImageResult struct {
	Text      string
	TaskID    string
	SolveTime time.Duration
	Cost      float64
	Provider  string
}
