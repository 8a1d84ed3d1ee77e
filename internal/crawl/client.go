// Package crawl is a minimal crawl driver around the interception stage. It
// fetches a page, runs it through the stage and dispatches resubmissions
// until the stage passes or rejects the chain.
package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/Rorqualx/captchagate/internal/intercept"
	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
	"github.com/Rorqualx/captchagate/pkg/version"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = types.MaxHTMLLength
	maxRedirects        = 10
)

// Stage runs one interception cycle. *intercept.Stage implements it.
type Stage interface {
	Process(ctx context.Context, req types.Request, resp *types.Response) intercept.Outcome
}

// Config configures a Client.
type Config struct {
	HTTPClient   *http.Client // Optional; see NewHTTPClient
	UserAgent    string
	MaxBodyBytes int64
}

// Hop is one HTTP exchange of a fetch chain.
type Hop struct {
	Method   string
	URL      string // Redacted
	Status   int
	Action   intercept.Action
	Attempts int
	Duration time.Duration
}

// Result is the outcome of Fetch.
type Result struct {
	// Response is the final page. It is nil when the chain was rejected.
	Response *types.Response
	Hops     []Hop
	// Block is set when the final page looks like a block or rate limit
	// page rather than content.
	Block *Block
}

// Client fetches pages through the interception stage.
type Client struct {
	http      *http.Client
	stage     Stage
	userAgent string
	maxBody   int64
}

// NewHTTPClient returns the client used for page fetches. Its cookie jar is
// scoped by the public suffix list, so cookies set on the challenge page are
// sent with the resubmission and with challenge image downloads that share it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// cookiejar.New only fails with invalid options
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// New creates a Client.
func New(stage Stage, cfg Config) *Client {
	c := &Client{
		http:      cfg.HTTPClient,
		stage:     stage,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}
	if c.http == nil {
		c.http = NewHTTPClient(DefaultTimeout)
	}
	if c.userAgent == "" {
		c.userAgent = version.UserAgent
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodyBytes
	}
	return c
}

// Fetch GETs rawURL and follows the interception chain it starts. Each
// resubmission is dispatched exactly as the stage built it and carries the
// chain's retry state, so the chain ends after the stage's attempt bound.
// A rejected chain returns the hops so far and the *types.RejectionError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidURL, err)
	}
	origin := types.Request{URL: rawURL, Method: http.MethodGet, Retry: types.NewRetryState(0)}

	result := &Result{}
	for {
		start := time.Now()
		resp, err := c.do(httpReq)
		if err != nil {
			return result, err
		}

		out := c.stage.Process(ctx, origin, resp)
		result.Hops = append(result.Hops, Hop{
			Method:   httpReq.Method,
			URL:      security.RedactURL(httpReq.URL.String()),
			Status:   resp.Status,
			Action:   out.Action,
			Attempts: origin.Retry.Attempts(),
			Duration: time.Since(start),
		})

		switch out.Action {
		case intercept.ActionPass:
			result.Response = out.Response
			if b := DetectBlock(resp.Status, resp.Header, resp.Body); b != nil {
				log.Warn().
					Str("url", security.RedactURL(resp.URL.String())).
					Str("code", b.Code).
					Str("kind", string(b.Kind)).
					Dur("retry_after", b.RetryAfter).
					Msg("Page looks like a block page")
				result.Block = b
			}
			return result, nil
		case intercept.ActionReject:
			return result, out.Err
		}

		httpReq, err = out.Request.HTTPRequest(ctx)
		if err != nil {
			return result, fmt.Errorf("build resubmission: %w", err)
		}
		origin = out.Request.Origin()

		log.Debug().
			Str("method", httpReq.Method).
			Str("url", security.RedactURL(httpReq.URL.String())).
			Int("attempt", origin.Retry.Attempts()).
			Msg("Dispatching captcha resubmission")
	}
}

// do sends req and reads the body, decoded to UTF-8 from the declared or
// sniffed charset.
func (c *Client) do(req *http.Request) (*types.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", security.RedactURL(req.URL.String()), err)
	}
	defer resp.Body.Close()

	body, err := charset.NewReader(io.LimitReader(resp.Body, c.maxBody), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", security.RedactURL(req.URL.String()), err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", security.RedactURL(req.URL.String()), err)
	}

	return &types.Response{
		URL:    resp.Request.URL,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
