package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/types"
)

// Both supported services speak the same createTask/getTaskResult JSON
// protocol. taskAPI implements it once; providers supply the task body and
// their error code mapping.

const (
	pathCreateTask = "/createTask"
	pathGetResult  = "/getTaskResult"
	pathGetBalance = "/getBalance"

	// maxAPIResponseSize caps provider response bodies.
	maxAPIResponseSize = 1 << 20
)

type taskAPI struct {
	provider     string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	pollInterval time.Duration
	mapError     func(code, description, taskID string) error
}

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	Task      any    `json:"task"`
}

type getResultRequest struct {
	ClientKey string          `json:"clientKey"`
	TaskID    json.RawMessage `json:"taskId"`
}

// taskResponse covers createTask, getTaskResult and getBalance responses.
// taskId is a number for 2Captcha and a string for CapSolver; cost is a
// string for 2Captcha and absent for CapSolver.
type taskResponse struct {
	ErrorID          int             `json:"errorId"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	ErrorDescription string          `json:"errorDescription,omitempty"`
	TaskID           json.RawMessage `json:"taskId,omitempty"`
	Status           string          `json:"status,omitempty"`
	Solution         *textSolution   `json:"solution,omitempty"`
	Cost             json.RawMessage `json:"cost,omitempty"`
	Balance          float64         `json:"balance,omitempty"`
}

type textSolution struct {
	Text string `json:"text"`
}

func (r *taskResponse) taskID() string {
	return strings.Trim(string(r.TaskID), `"`)
}

func (r *taskResponse) cost() float64 {
	raw := strings.Trim(string(r.Cost), `"`)
	if raw == "" {
		return 0
	}
	cost, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return cost
}

func (r *taskResponse) ready() bool {
	return r.Status == "ready" && r.Solution != nil
}

// solve creates a task and waits for its result.
func (a *taskAPI) solve(ctx context.Context, task any) (*taskResponse, string, error) {
	if a.apiKey == "" {
		return nil, "", fmt.Errorf("%s API key not configured", a.provider)
	}

	created, err := a.post(ctx, pathCreateTask, createTaskRequest{ClientKey: a.apiKey, Task: task})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create task: %w", err)
	}
	if created.ErrorID != 0 {
		return nil, "", a.mapError(created.ErrorCode, created.ErrorDescription, "")
	}

	taskID := created.taskID()

	// Image tasks are sometimes answered synchronously.
	if created.ready() {
		return created, taskID, nil
	}
	if taskID == "" {
		return nil, "", fmt.Errorf("%s returned no task id", a.provider)
	}

	log.Debug().
		Str("provider", a.provider).
		Str("task_id", taskID).
		Msg("Captcha task created")

	result, err := a.poll(ctx, created.TaskID, taskID)
	return result, taskID, err
}

// poll waits for the task result until it is ready, fails or times out.
func (a *taskAPI) poll(ctx context.Context, rawID json.RawMessage, taskID string) (*taskResponse, error) {
	pollCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewCaptchaTimeoutError(a.provider, taskID)
		case <-ticker.C:
		}

		result, err := a.post(pollCtx, pathGetResult, getResultRequest{ClientKey: a.apiKey, TaskID: rawID})
		if err != nil {
			if pollCtx.Err() != nil {
				continue
			}
			return nil, err
		}
		if result.ErrorID != 0 {
			return nil, a.mapError(result.ErrorCode, result.ErrorDescription, taskID)
		}

		switch result.Status {
		case "ready":
			if result.Solution == nil {
				return nil, fmt.Errorf("received ready status but no solution")
			}
			return result, nil
		case "failed":
			code := result.ErrorCode
			if code == "" {
				code = "ERROR_CAPTCHA_UNSOLVABLE"
			}
			return nil, a.mapError(code, result.ErrorDescription, taskID)
		}

		log.Debug().
			Str("provider", a.provider).
			Str("task_id", taskID).
			Str("status", result.Status).
			Msg("Captcha task still processing")
	}
}

// balance retrieves the account balance.
func (a *taskAPI) balance(ctx context.Context) (float64, error) {
	if a.apiKey == "" {
		return 0, fmt.Errorf("%s API key not configured", a.provider)
	}

	resp, err := a.post(ctx, pathGetBalance, map[string]string{"clientKey": a.apiKey})
	if err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		return 0, a.mapError(resp.ErrorCode, resp.ErrorDescription, "")
	}
	return resp.Balance, nil
}

func (a *taskAPI) post(ctx context.Context, path string, payload any) (*taskResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out taskResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

// genericError wraps an unmapped provider error code.
func genericError(provider, label, code, description, taskID string) error {
	msg := description
	if msg == "" {
		msg = code
	}
	return &types.CaptchaError{
		Provider: provider,
		TaskID:   taskID,
		Code:     code,
		Message:  fmt.Sprintf("%s error: %s", label, msg),
		Err:      types.ErrCaptchaSolverRejected,
	}
}
