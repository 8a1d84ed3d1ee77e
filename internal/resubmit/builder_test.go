package resubmit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/Rorqualx/captchagate/internal/inspect"
	"github.com/Rorqualx/captchagate/internal/types"
)

func challenge(t *testing.T, page, action, method, defaultEndpoint string) *inspect.Challenge {
	t.Helper()
	u, err := url.Parse(page)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", page, err)
	}
	return &inspect.Challenge{
		PageURL:         u,
		Form:            inspect.Form{Action: action, Method: method},
		DefaultEndpoint: defaultEndpoint,
	}
}

var hidden = inspect.Fields{{Name: "amzn", Value: "tokenA"}, {Name: "amzn-r", Value: "tokenB"}}

func TestBuild(t *testing.T) {
	b := NewBuilder()
	ch := challenge(t, "https://www.example.com/dp/B000?ref=x", "/errors/validateCaptcha", "", "")

	req, err := b.Build(ch, hidden, "field-keywords", "ABCDEF", types.NewRetryState(0))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Retry.Attempts() != 1 {
		t.Errorf("Retry.Attempts() = %d, want 1", req.Retry.Attempts())
	}
	want := "https://www.example.com/errors/validateCaptcha?amzn=tokenA&amzn-r=tokenB&field-keywords=ABCDEF"
	if got := req.Target().String(); got != want {
		t.Errorf("Target() = %q, want %q", got, want)
	}
	if len(hidden) != 2 {
		t.Errorf("Build() modified the input fields: %v", hidden)
	}
}

func TestBuild_AdvancesRetry(t *testing.T) {
	b := NewBuilder()
	ch := challenge(t, "https://www.example.com/", "/errors/validateCaptcha", "GET", "")

	for prev := 0; prev < 5; prev++ {
		req, err := b.Build(ch, nil, "field-keywords", "X", types.NewRetryState(prev))
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if req.Retry.Attempts() != prev+1 {
			t.Errorf("prev=%d: Attempts() = %d, want %d", prev, req.Retry.Attempts(), prev+1)
		}
	}
}

func TestBuild_Targets(t *testing.T) {
	b := NewBuilder()

	tests := []struct {
		name     string
		page     string
		action   string
		endpoint string
		want     string
		wantErr  bool
	}{
		{"relative action", "https://a.example.com/x/y", "validate", "", "https://a.example.com/x/validate", false},
		{"absolute action", "https://a.example.com/", "https://b.example.com/check#frag", "", "https://b.example.com/check", false},
		{"default endpoint", "https://a.example.com/p", "", "/errors/validateCaptcha", "https://a.example.com/errors/validateCaptcha", false},
		{"no action no endpoint", "https://a.example.com/p", "", "", "", true},
		{"javascript action", "https://a.example.com/", "javascript:void(0)", "", "", true},
		{"bad escape", "https://a.example.com/", "%zz", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := b.Build(challenge(t, tt.page, tt.action, "POST", tt.endpoint), nil, "answer", "v", types.RetryState{})
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidTarget) {
					t.Fatalf("Build() error = %v, want ErrInvalidTarget", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := req.Target().String(); got != tt.want {
				t.Errorf("Target() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_MissingPageURL(t *testing.T) {
	_, err := NewBuilder().Build(&inspect.Challenge{Form: inspect.Form{Action: "/x"}}, nil, "a", "b", types.RetryState{})
	if !errors.Is(err, types.ErrInvalidTarget) {
		t.Errorf("Build() error = %v, want ErrInvalidTarget", err)
	}
}

func TestHTTPRequest(t *testing.T) {
	b := NewBuilder()

	t.Run("get", func(t *testing.T) {
		req, _ := b.Build(challenge(t, "https://www.example.com/", "/errors/validateCaptcha", "get", ""), hidden, "field-keywords", "A B", types.RetryState{})
		hr, err := req.HTTPRequest(context.Background())
		if err != nil {
			t.Fatalf("HTTPRequest() error = %v", err)
		}
		if hr.Method != http.MethodGet || hr.Body != nil {
			t.Errorf("GET request has method %q body %v", hr.Method, hr.Body)
		}
		if got := hr.URL.Query().Get("field-keywords"); got != "A B" {
			t.Errorf("field-keywords = %q", got)
		}
	})

	t.Run("post", func(t *testing.T) {
		req, _ := b.Build(challenge(t, "https://www.example.com/", "/validate?keep=1", "POST", ""), hidden, "field-keywords", "XYZ", types.RetryState{})
		hr, err := req.HTTPRequest(context.Background())
		if err != nil {
			t.Fatalf("HTTPRequest() error = %v", err)
		}
		if hr.URL.RawQuery != "keep=1" {
			t.Errorf("POST query = %q, want original query", hr.URL.RawQuery)
		}
		if ct := hr.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(hr.Body)
		if string(body) != "amzn=tokenA&amzn-r=tokenB&field-keywords=XYZ" {
			t.Errorf("body = %q", body)
		}
	})
}

func TestOriginAndBody(t *testing.T) {
	req, err := NewBuilder().Build(challenge(t, "https://www.example.com/", "/errors/validateCaptcha", "", ""), hidden, "field-keywords", "ABC", types.NewRetryState(2))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	origin := req.Origin()
	if origin.Retry.Attempts() != 3 || origin.Method != http.MethodGet {
		t.Errorf("Origin() = %+v", origin)
	}

	body := req.Body()
	if body.Attempts != 3 || len(body.Fields) != 3 || body.Fields[2].Name != "field-keywords" {
		t.Errorf("Body() = %+v", body)
	}
}
