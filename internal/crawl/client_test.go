package crawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rorqualx/captchagate/internal/captcha"
	"github.com/Rorqualx/captchagate/internal/inspect"
	"github.com/Rorqualx/captchagate/internal/intercept"
	"github.com/Rorqualx/captchagate/internal/selectors"
	"github.com/Rorqualx/captchagate/internal/types"
)

const challengePage = `<html><body>
<form method="get" action="/errors/validateCaptcha">
  <input type="hidden" name="amzn" value="tokenA">
  <input type="hidden" name="amzn-r" value="tokenB">
  <div class="a-row a-text-center"><img src="/img/c1.jpg"></div>
  <input name="field-keywords" type="text">
</form></body></html>`

const productPage = `<html><body><h1>Product</h1></body></html>`

// site serves a product page behind a challenge. The challenge is cleared
// by the answer ABCDEF sent with the session cookie set on the challenge page.
type site struct {
	submissions atomic.Int32
}

func (s *site) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dp/B000", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session-id", Value: "s1", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(challengePage))
	})
	mux.HandleFunc("/errors/validateCaptcha", func(w http.ResponseWriter, r *http.Request) {
		s.submissions.Add(1)
		q := r.URL.Query()
		cookie, err := r.Cookie("session-id")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err != nil || cookie.Value != "s1" || q.Get("amzn") != "tokenA" || q.Get("amzn-r") != "tokenB" || q.Get("field-keywords") != "ABCDEF" {
			_, _ = w.Write([]byte(challengePage))
			return
		}
		_, _ = w.Write([]byte(productPage))
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("<p>Too many requests</p>"))
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body>caf\xe9</body></html>"))
	})
	return mux
}

func newClient(answer string) *Client {
	resolver := captcha.ResolverFunc(func(ctx context.Context, imageURL string) (*captcha.Solution, error) {
		return &captcha.Solution{Text: answer, Provider: "test"}, nil
	})
	insp := inspect.New(selectors.GetManager(), inspect.Options{Policy: inspect.PolicyFixedNames})
	stage := intercept.New(insp, resolver, intercept.Config{MaxAttempts: 3})
	return New(stage, Config{})
}

func TestFetchSolvesChallenge(t *testing.T) {
	s := &site{}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	result, err := newClient("ABCDEF").Fetch(context.Background(), srv.URL+"/dp/B000")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Response == nil || !strings.Contains(string(result.Response.Body), "Product") {
		t.Fatalf("Expected product page, got %+v", result.Response)
	}
	if len(result.Hops) != 2 {
		t.Fatalf("Hops = %d, want 2", len(result.Hops))
	}
	if result.Hops[0].Action != intercept.ActionRetry || result.Hops[1].Action != intercept.ActionPass {
		t.Errorf("Actions = %v, %v", result.Hops[0].Action, result.Hops[1].Action)
	}
	if result.Hops[1].Attempts != 1 {
		t.Errorf("Resubmission attempts = %d, want 1", result.Hops[1].Attempts)
	}
	if s.submissions.Load() != 1 {
		t.Errorf("Submissions = %d, want 1", s.submissions.Load())
	}
}

func TestFetchRejectsAfterAttemptLimit(t *testing.T) {
	s := &site{}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	result, err := newClient("WRONG").Fetch(context.Background(), srv.URL+"/dp/B000")

	var rej *types.RejectionError
	if !errors.As(err, &rej) || rej.Reason != types.ReasonAttemptLimitExceeded {
		t.Fatalf("Fetch() error = %v, want attempt limit rejection", err)
	}
	if !errors.Is(err, types.ErrAttemptLimitExceeded) {
		t.Error("error should wrap ErrAttemptLimitExceeded")
	}
	if result.Response != nil {
		t.Error("rejected chain must not return a response")
	}
	// Initial fetch plus three resubmissions.
	if len(result.Hops) != 4 {
		t.Errorf("Hops = %d, want 4", len(result.Hops))
	}
	if s.submissions.Load() != 3 {
		t.Errorf("Submissions = %d, want 3", s.submissions.Load())
	}
	for i, hop := range result.Hops {
		if hop.Attempts != i {
			t.Errorf("Hops[%d].Attempts = %d", i, hop.Attempts)
		}
	}
}

func TestFetchDecodesCharset(t *testing.T) {
	srv := httptest.NewServer((&site{}).handler())
	defer srv.Close()

	result, err := newClient("ABCDEF").Fetch(context.Background(), srv.URL+"/latin1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(string(result.Response.Body), "café") {
		t.Errorf("Body = %q, want decoded latin-1", result.Response.Body)
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	insp := inspect.New(selectors.GetManager(), inspect.Options{})
	stage := intercept.New(insp, captcha.ResolverFunc(func(context.Context, string) (*captcha.Solution, error) { return nil, nil }), intercept.Config{})
	client := New(stage, Config{MaxBodyBytes: 100})

	result, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(result.Response.Body) != 100 {
		t.Errorf("Body length = %d, want 100", len(result.Response.Body))
	}
}

func TestFetchCanceled(t *testing.T) {
	srv := httptest.NewServer((&site{}).handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient("ABCDEF").Fetch(ctx, srv.URL+"/dp/B000")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := newClient("ABCDEF").Fetch(context.Background(), "http://[::1")
	if !errors.Is(err, types.ErrInvalidURL) {
		t.Errorf("Fetch() error = %v, want ErrInvalidURL", err)
	}
}

func TestFetchReportsBlockPage(t *testing.T) {
	srv := httptest.NewServer((&site{}).handler())
	defer srv.Close()

	result, err := newClient("ABCDEF").Fetch(context.Background(), srv.URL+"/limited")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Block == nil || result.Block.Kind != BlockRateLimit {
		t.Fatalf("Block = %+v, want rate limit", result.Block)
	}
	if result.Block.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", result.Block.RetryAfter)
	}
}
