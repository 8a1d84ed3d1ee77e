package captcha

import (
	"context"
	"net/http"
	"time"

	"github.com/Rorqualx/captchagate/internal/types"
)

const (
	twoCaptchaBaseURL = "https://api.2captcha.com"

	// 2Captcha recommends 5s between result polls.
	twoCaptchaPollInterval = 5 * time.Second

	twoCaptchaDefaultTimeout = 120 * time.Second
)

// TwoCaptchaSolver implements Provider for the 2Captcha API.
type TwoCaptchaSolver struct {
	api *taskAPI
}

// TwoCaptchaConfig contains configuration for 2Captcha solver.
type TwoCaptchaConfig struct {
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration // Override for testing
	BaseURL      string        // Override for testing
}

// NewTwoCaptchaSolver creates a new 2Captcha solver instance.
func NewTwoCaptchaSolver(cfg TwoCaptchaConfig) *TwoCaptchaSolver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = twoCaptchaDefaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twoCaptchaBaseURL
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = twoCaptchaPollInterval
	}

	s := &TwoCaptchaSolver{}
	s.api = &taskAPI{
		provider:     s.Name(),
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		timeout:      timeout,
		pollInterval: poll,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per API call; polling is bounded by timeout
		},
		mapError: s.handleError,
	}
	return s
}

// Name returns the provider name.
func (s *TwoCaptchaSolver) Name() string {
	return "2captcha"
}

// IsConfigured returns true if API key is set.
func (s *TwoCaptchaSolver) IsConfigured() bool {
	return s.api.apiKey != ""
}

// twoCaptchaImageTask is the ImageToTextTask specification.
type twoCaptchaImageTask struct {
	Type    string `json:"type"`
	Body    string `json:"body"`
	Case    bool   `json:"case,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// SolveImage solves an image challenge using the 2Captcha API.
func (s *TwoCaptchaSolver) SolveImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	result, taskID, err := s.api.solve(ctx, twoCaptchaImageTask{
		Type:    "ImageToTextTask",
		Body:    req.Body,
		Case:    req.CaseSensitive,
		Comment: "enter the characters shown",
	})
	if err != nil {
		return nil, err
	}

	return &ImageResult{
		Text:      result.Solution.Text,
		TaskID:    taskID,
		SolveTime: time.Since(start),
		Cost:      result.cost(),
		Provider:  s.Name(),
	}, nil
}

// Balance retrieves the current account balance.
func (s *TwoCaptchaSolver) Balance(ctx context.Context) (float64, error) {
	return s.api.balance(ctx)
}

// handleError converts 2Captcha error codes to appropriate error types.
func (s *TwoCaptchaSolver) handleError(code, description, taskID string) error {
	switch code {
	case "ERROR_ZERO_BALANCE":
		return types.NewCaptchaBalanceError(s.Name())
	case "ERROR_CAPTCHA_UNSOLVABLE":
		return types.NewCaptchaUnsolvableError(s.Name(), code)
	case "ERROR_NO_SLOT_AVAILABLE":
		return types.NewCaptchaRejectedError(s.Name(), code, "no workers available, try again later")
	case "ERROR_ZERO_CAPTCHA_FILESIZE", "ERROR_TOO_BIG_CAPTCHA_FILESIZE", "ERROR_IMAGE_TYPE_NOT_SUPPORTED":
		return types.NewCaptchaRejectedError(s.Name(), code, "image not accepted")
	case "ERROR_BAD_DUPLICATES":
		return types.NewCaptchaRejectedError(s.Name(), code, "too many duplicate requests")
	case "ERROR_KEY_DOES_NOT_EXIST", "ERROR_WRONG_USER_KEY":
		return types.NewCaptchaRejectedError(s.Name(), code, "invalid API key")
	default:
		return genericError(s.Name(), "2Captcha", code, description, taskID)
	}
}
