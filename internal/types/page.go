package types

import (
	"net/http"
	"net/url"
)

// Response is a fetched page handed to the interception stage by the crawl
// engine. The stage only reads it.
type Response struct {
	URL    *url.URL
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a Response from a raw URL and body.
func NewResponse(rawURL string, status int, body []byte) (*Response, error) {
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if !u.IsAbs() {
		return nil, ErrInvalidURL
	}
	return &Response{URL: u, Status: status, Header: http.Header{}, Body: body}, nil
}

// Request is the request that produced a Response, as seen by the stage.
// Only its RetryState influences interception.
type Request struct {
	URL    string
	Method string
	Retry  RetryState
}
