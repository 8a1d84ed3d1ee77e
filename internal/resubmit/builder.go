// Package resubmit turns a solved challenge into the request that submits
// the answer back to the site.
package resubmit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/inspect"
	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
)

// Request is a resubmission ready to be dispatched by the crawl engine.
type Request struct {
	URL    *url.URL
	Method string
	Fields inspect.Fields
	Retry  types.RetryState
}

// Builder creates resubmission requests. It has no state.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build creates the request that submits solution in solutionField together
// with fields to the challenge form's target. The returned request carries
// prev advanced by one attempt. A target that cannot be resolved to an
// absolute http(s) URL yields an error wrapping types.ErrInvalidTarget.
func (b *Builder) Build(ch *inspect.Challenge, fields inspect.Fields, solutionField, solution string, prev types.RetryState) (*Request, error) {
	target, err := resolveTarget(ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidTarget, err)
	}

	method := strings.ToUpper(strings.TrimSpace(ch.Form.Method))
	if method == "" {
		method = http.MethodGet
	}

	req := &Request{
		URL:    target,
		Method: method,
		Fields: fields.With(solutionField, solution),
		Retry:  prev.Next(),
	}

	log.Debug().
		Str("target", security.RedactURL(target.String())).
		Str("method", method).
		Int("attempts", req.Retry.Attempts()).
		Msg("Built captcha resubmission")

	return req, nil
}

// resolveTarget resolves the form action, or the default endpoint when the
// form has none, against the page URL.
func resolveTarget(ch *inspect.Challenge) (*url.URL, error) {
	if ch.PageURL == nil {
		return nil, fmt.Errorf("page URL missing")
	}

	action := strings.TrimSpace(ch.Form.Action)
	if action == "" {
		action = ch.DefaultEndpoint
	}
	if action == "" {
		return nil, fmt.Errorf("form has no action and no default endpoint is configured")
	}

	ref, err := url.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("parse form action %q: %v", action, err)
	}

	target := ch.PageURL.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("form action %q resolves to unsupported scheme %q", action, target.Scheme)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("form action %q resolves to a URL without host", action)
	}
	target.Fragment = ""
	return target, nil
}

// Target returns the URL the request is sent to. For GET the fields replace
// the target's query; for other methods the target is unchanged.
func (r *Request) Target() *url.URL {
	u := *r.URL
	if r.Method == http.MethodGet {
		u.RawQuery = r.Fields.Encode()
	}
	return &u
}

// HTTPRequest builds the HTTP request for dispatch. Non-GET methods send the
// fields as an urlencoded body.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Method != http.MethodGet {
		body = strings.NewReader(r.Fields.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.Target().String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// Origin returns the request as seen by the next interception cycle.
func (r *Request) Origin() types.Request {
	return types.Request{
		URL:    r.Target().String(),
		Method: r.Method,
		Retry:  r.Retry,
	}
}

// Body converts the request to its API representation.
func (r *Request) Body() *types.ResubmissionBody {
	fields := make([]types.FieldBody, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, types.FieldBody{Name: f.Name, Value: f.Value})
	}
	return &types.ResubmissionBody{
		URL:      r.Target().String(),
		Method:   r.Method,
		Fields:   fields,
		Attempts: r.Retry.Attempts(),
	}
}
