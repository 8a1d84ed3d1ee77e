package security

import (
	"net/url"
	"strings"
)

// RedactURL removes sensitive information from a URL for safe logging.
// User credentials are replaced and query parameters whose name looks like
// a secret are masked. Parameter order is preserved.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.User != nil {
		parsed.User = url.User("[REDACTED]")
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = redactQuery(parsed.RawQuery)
	}

	return parsed.String()
}

// sensitiveParamPatterns are query parameter names that likely contain secrets.
// "key" also covers the answer field of keyword-style challenge forms.
var sensitiveParamPatterns = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"token",
	"auth",
	"bearer",
	"credential",
	"key",
	"session",
	"sid",
	"private",
	"captcha",
}

// IsSensitiveParam reports whether a parameter name should be masked in logs.
func IsSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range sensitiveParamPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func redactQuery(raw string) string {
	parts := strings.Split(raw, "&")
	for i, part := range parts {
		name, _, hasValue := strings.Cut(part, "=")
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if hasValue && IsSensitiveParam(decoded) {
			parts[i] = name + "=[REDACTED]"
		}
	}
	return strings.Join(parts, "&")
}

// RedactKey shortens an API key to a recognizable prefix for logs.
func RedactKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
