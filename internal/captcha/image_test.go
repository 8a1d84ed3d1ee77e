package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
)

func TestImageFetcher_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write(gifPixel)
	}))
	defer srv.Close()

	f := NewImageFetcher(ImageFetcherConfig{AllowPrivateHosts: true, UserAgent: "captchagate-test"})
	img, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if img.ContentType != "image/gif" {
		t.Errorf("ContentType = %q", img.ContentType)
	}
	if gotUA != "captchagate-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if len(img.Digest()) != 64 || img.Base64() == "" {
		t.Error("expected digest and base64 encoding")
	}
}

func TestImageFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"empty", func(w http.ResponseWriter, r *http.Request) {}},
		{"html", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html><body>blocked</body></html>")) }},
		{"too large", func(w http.ResponseWriter, r *http.Request) {
			w.Write(gifPixel)
			w.Write([]byte(strings.Repeat("x", 200)))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewImageFetcher(ImageFetcherConfig{AllowPrivateHosts: true, MaxBytes: 100})
			if _, err := f.Fetch(context.Background(), srv.URL); !errors.Is(err, types.ErrCaptchaImageFetch) {
				t.Errorf("Fetch() error = %v, want ErrCaptchaImageFetch", err)
			}
		})
	}
}

func TestImageFetcher_BlocksPrivateHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gifPixel)
	}))
	defer srv.Close()

	f := NewImageFetcher(ImageFetcherConfig{})
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrCaptchaImageFetch) || !errors.Is(err, security.ErrLocalhostBlocked) {
		t.Errorf("Fetch() error = %v, want localhost blocked", err)
	}
}
