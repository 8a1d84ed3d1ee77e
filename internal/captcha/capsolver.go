package captcha

import (
	"context"
	"net/http"
	"time"

	"github.com/Rorqualx/captchagate/internal/types"
)

const (
	capSolverBaseURL = "https://api.capsolver.com"

	capSolverPollInterval = 3 * time.Second

	capSolverDefaultTimeout = 120 * time.Second

	// capSolverModule selects CapSolver's general alphanumeric recognizer.
	capSolverModule = "common"
)

// CapSolverSolver implements Provider for the CapSolver API.
type CapSolverSolver struct {
	api *taskAPI
}

// CapSolverConfig contains configuration for CapSolver solver.
type CapSolverConfig struct {
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration // Override for testing
	BaseURL      string        // Override for testing
}

// NewCapSolverSolver creates a new CapSolver solver instance.
func NewCapSolverSolver(cfg CapSolverConfig) *CapSolverSolver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = capSolverDefaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = capSolverBaseURL
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = capSolverPollInterval
	}

	s := &CapSolverSolver{}
	s.api = &taskAPI{
		provider:     s.Name(),
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		timeout:      timeout,
		pollInterval: poll,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		mapError: s.handleError,
	}
	return s
}

// Name returns the provider name.
func (s *CapSolverSolver) Name() string {
	return "capsolver"
}

// IsConfigured returns true if API key is set.
func (s *CapSolverSolver) IsConfigured() bool {
	return s.api.apiKey != ""
}

// capSolverImageTask is the ImageToTextTask specification.
type capSolverImageTask struct {
	Type       string `json:"type"`
	Body       string `json:"body"`
	Module     string `json:"module,omitempty"`
	WebsiteURL string `json:"websiteURL,omitempty"`
}

// SolveImage solves an image challenge using the CapSolver API.
// CapSolver usually answers image tasks in the createTask response.
func (s *CapSolverSolver) SolveImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	result, taskID, err := s.api.solve(ctx, capSolverImageTask{
		Type:       "ImageToTextTask",
		Body:       req.Body,
		Module:     capSolverModule,
		WebsiteURL: req.ImageURL,
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
func (s *CapSolverSolver) Balance(ctx context.Context) (float64, error) {
	return s.api.balance(ctx)
}

// handleError converts CapSolver error codes to appropriate error types.
func (s *CapSolverSolver) handleError(code, description, taskID string) error {
	switch code {
	case "ERROR_ZERO_BALANCE":
		return types.NewCaptchaBalanceError(s.Name())
	case "ERROR_CAPTCHA_UNSOLVABLE":
		return types.NewCaptchaUnsolvableError(s.Name(), code)
	case "ERROR_NO_AVAILABLE_WORKERS":
		return types.NewCaptchaRejectedError(s.Name(), code, "no workers available")
	case "ERROR_INVALID_TASK_DATA", "ERROR_INVALID_IMAGE":
		return types.NewCaptchaRejectedError(s.Name(), code, "image not accepted")
	case "ERROR_KEY_DENIED", "ERROR_INVALID_CLIENTKEY":
		return types.NewCaptchaRejectedError(s.Name(), code, "invalid API key")
	case "ERROR_TASK_NOT_FOUND", "ERROR_TASKID_INVALID":
		return types.NewCaptchaRejectedError(s.Name(), code, "task not found or expired")
	default:
		return genericError(s.Name(), "CapSolver", code, description, taskID)
	}
}
