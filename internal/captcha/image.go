package captcha

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
	"github.com/Rorqualx/captchagate/pkg/version"
)

// DefaultMaxImageBytes caps downloaded challenge images.
const DefaultMaxImageBytes = 1 << 20

// Image is a downloaded challenge image.
type Image struct {
	Data        []byte
	ContentType string
}

// Base64 returns the image as providers expect it.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Digest returns the hex SHA-256 of the image bytes.
func (i *Image) Digest() string {
	sum := sha256.Sum256(i.Data)
	return hex.EncodeToString(sum[:])
}

// ImageFetcher downloads challenge images.
type ImageFetcher struct {
	client    *http.Client
	validator *security.URLValidator
	maxBytes  int64
	userAgent string
}

// ImageFetcherConfig configures an ImageFetcher.
type ImageFetcherConfig struct {
	Client            *http.Client // Optional; a client with a 30s timeout is used otherwise
	AllowPrivateHosts bool         // Skip address checks on image URLs
	MaxBytes          int64
	UserAgent         string
}

// NewImageFetcher creates an ImageFetcher. Redirects are validated like the
// original URL.
func NewImageFetcher(cfg ImageFetcherConfig) *ImageFetcher {
	f := &ImageFetcher{
		validator: security.NewURLValidator(cfg.AllowPrivateHosts),
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxImageBytes
	}
	if f.userAgent == "" {
		f.userAgent = version.UserAgent
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("too many redirects")
		}
		return f.validator.Validate(req.Context(), req.URL.String())
	}
	f.client = &c
	return f
}

// Fetch downloads the image at rawURL.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if err := f.validator.Validate(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCaptchaImageFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCaptchaImageFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCaptchaImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", types.ErrCaptchaImageFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCaptchaImageFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", types.ErrCaptchaImageFetch, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", types.ErrCaptchaImageFetch)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unexpected content type %q", types.ErrCaptchaImageFetch, contentType)
	}

	return &Image{Data: data, ContentType: contentType}, nil
}
