package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Request validation limits.
const (
	MaxURLLength    = 8192
	MaxHTMLLength   = 4 << 20 // 4MB
	MaxMethodLength = 16
	MaxAttempts     = 1000
)

// ProcessRequest is the body of POST /v1/process.
type ProcessRequest struct {
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	HTML     string `json:"html"`
	Method   string `json:"method,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *ProcessRequest) Validate() error {
	if r.URL == "" {
		return ErrURLRequired
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d", MaxURLLength)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got: %q", scheme)
	}
	if len(r.HTML) > MaxHTMLLength {
		return fmt.Errorf("html exceeds maximum length of %d", MaxHTMLLength)
	}
	if len(r.Method) > MaxMethodLength {
		return fmt.Errorf("method exceeds maximum length of %d", MaxMethodLength)
	}
	if r.Attempts < 0 {
		return fmt.Errorf("attempts cannot be negative")
	}
	if r.Attempts > MaxAttempts {
		return fmt.Errorf("attempts exceeds maximum of %d", MaxAttempts)
	}
	return nil
}

// ProcessResponse represents an API response.
type ProcessResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	StartTime int64             `json:"startTimestamp"`
	EndTime   int64             `json:"endTimestamp"`
	Version   string            `json:"version"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Request   *ResubmissionBody `json:"request,omitempty"`
	Solvers   map[string]any    `json:"solvers,omitempty"`
}

// ResubmissionBody is the JSON form of a resubmission the caller must dispatch.
type ResubmissionBody struct {
	URL      string      `json:"url"`
	Method   string      `json:"method"`
	Fields   []FieldBody `json:"fields"`
	Attempts int         `json:"attempts"`
}

// FieldBody is one form field, kept in submission order.
type FieldBody struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
