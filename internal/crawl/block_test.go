package crawl

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   http.Header
		body     string
		wantCode string
		wantKind BlockKind
		wantWait time.Duration
	}{
		{name: "ordinary page", status: 200, body: "<p>Access denied errors are explained in our FAQ</p>"},
		{name: "http 429", status: 429, body: "", wantCode: "HTTP_429", wantKind: BlockRateLimit, wantWait: time.Minute},
		{name: "429 with retry-after", status: 429, header: http.Header{"Retry-After": {"7"}}, wantCode: "HTTP_429", wantKind: BlockRateLimit, wantWait: 7 * time.Second},
		{name: "cloudflare 1015", status: 429, body: "<h1>Error code: 1015</h1>", wantCode: "CF_1015", wantKind: BlockRateLimit, wantWait: time.Minute},
		{name: "cloudflare geo", status: 403, body: "Error code 1009", wantCode: "CF_1009", wantKind: BlockGeo},
		{name: "cloudflare access", status: 403, body: "error code: 1020", wantCode: "CF_ACCESS", wantKind: BlockAccessDenied, wantWait: 30 * time.Second},
		{name: "cloudflare 403", status: 403, body: "<title>Attention Required! | Cloudflare</title>", wantCode: "CF_403", wantKind: BlockAccessDenied, wantWait: 30 * time.Second},
		{name: "generic access denied", status: 403, body: "Access  Denied", wantCode: "ACCESS_DENIED", wantKind: BlockAccessDenied, wantWait: 5 * time.Second},
		{name: "recaptcha widget", status: 200, body: `<div class="g-recaptcha" data-sitekey="x"></div>`, wantCode: "CHALLENGE_WIDGET", wantKind: BlockChallenge},
		{name: "plain 404", status: 404, body: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DetectBlock(tt.status, tt.header, []byte(tt.body))
			if tt.wantCode == "" {
				if b != nil {
					t.Fatalf("DetectBlock() = %+v, want nil", b)
				}
				return
			}
			if b == nil {
				t.Fatal("DetectBlock() = nil")
			}
			if b.Code != tt.wantCode || b.Kind != tt.wantKind {
				t.Errorf("DetectBlock() = %s/%s, want %s/%s", b.Code, b.Kind, tt.wantCode, tt.wantKind)
			}
			if b.RetryAfter != tt.wantWait {
				t.Errorf("RetryAfter = %v, want %v", b.RetryAfter, tt.wantWait)
			}
		})
	}
}

func TestDetectBlockScanLimit(t *testing.T) {
	body := strings.Repeat("a", maxBlockScan) + "too many requests"
	if b := DetectBlock(500, nil, []byte(body)); b != nil {
		t.Errorf("patterns past the scan limit must not match, got %+v", b)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("120"); !ok || d != 2*time.Minute {
		t.Errorf("parseRetryAfter(120) = %v, %v", d, ok)
	}
	if _, ok := parseRetryAfter("soon"); ok {
		t.Error("parseRetryAfter(soon) should fail")
	}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(past); !ok || d != 0 {
		t.Errorf("parseRetryAfter(past) = %v, %v", d, ok)
	}
}
