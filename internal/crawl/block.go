package crawl

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxBlockScan limits how much of a body the block patterns run over.
const maxBlockScan = 100 * 1024

// BlockKind is the broad category of a block page.
type BlockKind string

// Block kinds.
const (
	BlockRateLimit    BlockKind = "rate_limit"
	BlockAccessDenied BlockKind = "access_denied"
	BlockGeo          BlockKind = "geo_blocked"
	// BlockChallenge is a challenge the interception stage does not handle,
	// such as a script-driven widget.
	BlockChallenge BlockKind = "challenge"
)

// Block describes a page that passed interception but is not content.
type Block struct {
	Code       string
	Kind       BlockKind
	Reason     string
	RetryAfter time.Duration // Suggested backoff; zero when waiting will not help
}

type blockPattern struct {
	re         *regexp.Regexp
	code       string
	kind       BlockKind
	retryAfter time.Duration
	reason     string
}

// Bounded repetitions keep the patterns from backtracking across markup.
var blockPatterns = []blockPattern{
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1015`), "CF_1015", BlockRateLimit, time.Minute, "Cloudflare rate limit exceeded"},
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1009`), "CF_1009", BlockGeo, 0, "Cloudflare geo-restriction"},
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}10(06|07|08|10|12|20)`), "CF_ACCESS", BlockAccessDenied, 30 * time.Second, "Cloudflare access denied"},
	{regexp.MustCompile(`(?i)too\s{1,5}many\s{1,5}requests`), "TOO_MANY_REQUESTS", BlockRateLimit, 10 * time.Second, "Too many requests"},
	{regexp.MustCompile(`(?i)rate\s{0,3}limit`), "RATE_LIMITED", BlockRateLimit, 10 * time.Second, "Rate limited"},
	{regexp.MustCompile(`(?i)access\s{1,5}denied`), "ACCESS_DENIED", BlockAccessDenied, 5 * time.Second, "Access denied"},
	{regexp.MustCompile(`(?i)you\s{1,5}(have\s{1,5}been\s{1,5})?blocked`), "BLOCKED", BlockAccessDenied, 15 * time.Second, "Request blocked"},
	{regexp.MustCompile(`(?i)(g-recaptcha|h-captcha|cf-turnstile|challenge-platform)`), "CHALLENGE_WIDGET", BlockChallenge, 0, "Unsupported challenge widget"},
}

// DetectBlock classifies a passed page as a block page, or returns nil.
// Body patterns take precedence over the status code since they are more
// specific; a Retry-After header overrides the suggested backoff.
func DetectBlock(status int, header http.Header, body []byte) *Block {
	scan := body
	if len(scan) > maxBlockScan {
		scan = scan[:maxBlockScan]
	}

	var b *Block
	switch status {
	case http.StatusTooManyRequests:
		b = &Block{Code: "HTTP_429", Kind: BlockRateLimit, Reason: "HTTP 429 Too Many Requests", RetryAfter: time.Minute}
	case http.StatusServiceUnavailable:
		b = &Block{Code: "HTTP_503", Kind: BlockRateLimit, Reason: "HTTP 503 Service Unavailable", RetryAfter: 30 * time.Second}
	}

	// Ordinary pages routinely mention "access denied" or "rate limit" in
	// their text, so body patterns only apply to error statuses.
	if status >= 400 {
		for _, p := range blockPatterns {
			if p.re.Match(scan) {
				b = &Block{Code: p.code, Kind: p.kind, Reason: p.reason, RetryAfter: p.retryAfter}
				break
			}
		}
		if b == nil && status == http.StatusForbidden && strings.Contains(strings.ToLower(string(scan)), "cloudflare") {
			b = &Block{Code: "CF_403", Kind: BlockAccessDenied, Reason: "Cloudflare 403 Forbidden", RetryAfter: 30 * time.Second}
		}
	} else if blockPatterns[len(blockPatterns)-1].re.Match(scan) {
		p := blockPatterns[len(blockPatterns)-1]
		b = &Block{Code: p.code, Kind: p.kind, Reason: p.reason}
	}

	if b != nil && header != nil {
		if d, ok := parseRetryAfter(header.Get("Retry-After")); ok {
			b.RetryAfter = d
		}
	}
	return b
}

// parseRetryAfter accepts the delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
