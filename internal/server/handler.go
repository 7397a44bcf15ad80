package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/org-posture/internal/discovery"
	"github.com/pankaj-dahiya-devops/org-posture/internal/models"
	"github.com/pankaj-dahiya-devops/org-posture/internal/output"
	"github.com/pankaj-dahiya-devops/org-posture/internal/version"
)

// StartRequest optionally overrides the server's default run parameters.
type StartRequest struct {
	AuditRoleARN   string `json:"audit_role_arn,omitempty"`
	Region         string `json:"region,omitempty"`
	MaxConcurrency *int   `json:"max_concurrency,omitempty"`
}

// Handler serves the assessment API.
type Handler struct {
	tracker    *RunTracker
	discoverer discovery.Discoverer
	defaults   models.AssessmentConfig
}

// NewHandler returns a Handler starting runs with defaults unless the request
// overrides them.
func NewHandler(tracker *RunTracker, d discovery.Discoverer, defaults models.AssessmentConfig) *Handler {
	return &Handler{tracker: tracker, discoverer: d, defaults: defaults}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// Health reports liveness and the build version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

// StartAssessment launches a run and answers 202 with its id.
func (h *Handler) StartAssessment(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg := h.defaults
	if req.AuditRoleARN != "" {
		cfg.AuditRoleARN = req.AuditRoleARN
	}
	if req.Region != "" {
		cfg.Region = req.Region
	}
	if req.MaxConcurrency != nil {
		if *req.MaxConcurrency < 0 {
			writeError(w, r, http.StatusBadRequest, "max_concurrency must not be negative")
			return
		}
		cfg.MaxConcurrency = *req.MaxConcurrency
	}
	if strings.TrimSpace(cfg.AuditRoleARN) == "" {
		writeError(w, r, http.StatusBadRequest, "audit_role_arn is required")
		return
	}

	view := h.tracker.Start(cfg)
	zerolog.Ctx(r.Context()).Info().Str("run_id", view.ID).Msg("assessment started")
	w.Header().Set("Location", "/api/v1/assessments/"+view.ID)
	writeJSON(w, r, http.StatusAccepted, view)
}

// ListAssessments returns every known run, newest first.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	views, err := h.tracker.List(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list assessments")
		writeError(w, r, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	writeJSON(w, r, http.StatusOK, views)
}

// GetAssessment returns status and progress of one run.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.tracker.Get(r.Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("run_id", id).Msg("failed to load assessment")
		writeError(w, r, http.StatusInternalServerError, "failed to load assessment")
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// GetFindings returns a finished run's findings as JSON (default) or CSV.
func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "id")

	format := output.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := output.ParseFormat(q)
		if err != nil || (f != output.FormatJSON && f != output.FormatCSV) {
			writeError(w, r, http.StatusBadRequest, "format must be json or csv")
			return
		}
		format = f
	}

	findings, runErr, done, err := h.tracker.Findings(ctx, id)
	switch {
	case errors.Is(err, ErrRunNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	case err != nil:
		logger.Error().Err(err).Str("run_id", id).Msg("failed to load findings")
		writeError(w, r, http.StatusInternalServerError, "failed to load findings")
		return
	case !done:
		writeError(w, r, http.StatusConflict, "assessment is still running")
		return
	}

	if format == output.FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="aws_security_assessment_`+id+`.csv"`)
		w.WriteHeader(http.StatusOK)
		res := &models.AssessmentResult{Findings: findings}
		if err := output.WriteCSV(w, output.ResultRows(res, runErr)); err != nil {
			logger.Error().Err(err).Str("run_id", id).Msg("failed to write csv")
		}
		return
	}
	if findings == nil {
		findings = []models.Finding{}
	}
	writeJSON(w, r, http.StatusOK, findings)
}

// ListAccounts runs discovery and returns the active accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.discoverer.DiscoverAccounts(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("account discovery failed")
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, accounts)
}
