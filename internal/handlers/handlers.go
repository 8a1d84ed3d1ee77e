// Package handlers provides HTTP request handlers for the captchagate API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/intercept"
	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/types"
	"github.com/Rorqualx/captchagate/pkg/version"
)

// maxBodySize bounds a /v1/process body: the page HTML plus the envelope.
const maxBodySize = types.MaxHTMLLength + 64<<10

// balanceTimeout bounds provider balance lookups for /v1/solvers.
const balanceTimeout = 10 * time.Second

// Processor runs one interception cycle. *intercept.Stage implements it.
type Processor interface {
	Process(ctx context.Context, req types.Request, resp *types.Response) intercept.Outcome
	MaxAttempts() int
}

// SolverInfo reports on the configured solver providers.
// *captcha.Chain implements it.
type SolverInfo interface {
	ProviderNames() []string
	GetMetrics() map[string]any
	Balances(ctx context.Context) map[string]float64
}

// Handler handles all captchagate API requests.
type Handler struct {
	stage   Processor
	solvers SolverInfo
}

// New creates a new Handler. solvers may be nil.
func New(stage Processor, solvers SolverInfo) *Handler {
	return &Handler{
		stage:   stage,
		solvers: solvers,
	}
}

// HandleHealth handles the /health endpoint.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	resp := types.ProcessResponse{
		Status:    types.StatusOK,
		Message:   "captchagate is ready",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HandleSolvers reports provider statistics. Balances are only queried when
// the request carries balance=true since each lookup is a provider round trip.
func (h *Handler) HandleSolvers(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if h.solvers == nil {
		h.writeErrorWithStatus(w, http.StatusServiceUnavailable, types.ErrCaptchaNoProviders.Error(), startTime)
		return
	}

	info := map[string]any{
		"providers":    h.solvers.ProviderNames(),
		"stats":        h.solvers.GetMetrics(),
		"max_attempts": h.stage.MaxAttempts(),
	}
	if r.URL.Query().Get("balance") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), balanceTimeout)
		defer cancel()
		info["balances"] = h.solvers.Balances(ctx)
	}

	resp := types.ProcessResponse{
		Status:    types.StatusOK,
		Message:   "Solver statistics retrieved",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Solvers:   info,
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HandleProcess runs a fetched page through the interception stage and
// reports the outcome. A retry outcome carries the resubmission the caller
// must dispatch, with its attempt count to send back on the next call.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorWithStatus(w, http.StatusRequestEntityTooLarge, "Request body too large", startTime)
			return
		}
		log.Warn().Err(err).Msg("Failed to read request body")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Failed to read request", startTime)
		return
	}

	var req types.ProcessRequest
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Invalid JSON request", startTime)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorWithStatus(w, http.StatusBadRequest, err.Error(), startTime)
		return
	}

	status := req.Status
	if status == 0 {
		status = http.StatusOK
	}
	page, err := types.NewResponse(req.URL, status, []byte(req.HTML))
	if err != nil {
		h.writeErrorWithStatus(w, http.StatusBadRequest, err.Error(), startTime)
		return
	}

	log.Info().
		Str("url", security.RedactURL(req.URL)).
		Int("attempts", req.Attempts).
		Int("html_bytes", len(req.HTML)).
		Msg("Process request received")

	out := h.stage.Process(r.Context(), types.Request{
		URL:    req.URL,
		Method: req.Method,
		Retry:  types.NewRetryState(req.Attempts),
	}, page)

	h.writeOutcome(w, out, startTime)
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", time.Now())
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", time.Now())
}

// writeOutcome maps a stage outcome onto the API envelope. Every outcome is
// a successful call; a rejection is reported through action and reason.
func (h *Handler) writeOutcome(w http.ResponseWriter, out intercept.Outcome, startTime time.Time) {
	resp := types.ProcessResponse{
		Status:    types.StatusOK,
		StartTime: startTime.UnixMilli(),
		Version:   version.Full(),
		Action:    out.Action.String(),
	}

	switch out.Action {
	case intercept.ActionRetry:
		resp.Message = "Challenge solved, resubmit the request"
		resp.Request = out.Request.Body()
	case intercept.ActionReject:
		resp.Reason = string(out.Reason())
		resp.Message = out.Err.Error()
	default:
		resp.Message = "No challenge detected"
	}

	resp.EndTime = time.Now().UnixMilli()
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := types.ProcessResponse{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp any) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}
