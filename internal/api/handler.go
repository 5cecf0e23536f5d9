// Package api exposes the heatmap drill-down queries and the public
// report form over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ekballo/heatmap-api/internal/config"
	"github.com/ekballo/heatmap-api/internal/grid"
	"github.com/ekballo/heatmap-api/internal/reports"
	"github.com/ekballo/heatmap-api/internal/saturation"
)

// QueryService answers the read actions.
type QueryService interface {
	GetSelf(ctx context.Context, gridID, divisor int64) (*saturation.SelfDetail, error)
	GetLevel(ctx context.Context, gridID int64, level grid.Level, divisor int64) (*saturation.LevelStat, bool, error)
	GetGridData(ctx context.Context) (*saturation.GridData, error)
}

// ReportService accepts public new-report submissions.
type ReportService interface {
	NewReport(ctx context.Context, in *reports.NewReportInput) (*reports.NewReportResult, error)
}

// Handler routes heatmap requests to the query and report services.
type Handler struct {
	queries QueryService
	reports ReportService
	divisor int64
}

// NewHandler builds a Handler using the given population divisor for
// all read actions.
func NewHandler(queries QueryService, rep ReportService, divisor int64) *Handler {
	if divisor <= 0 {
		divisor = saturation.DefaultGlobalDivisor
	}
	return &Handler{queries: queries, reports: rep, divisor: divisor}
}

// Router wires the endpoint tree with CORS, request logging, and a
// per-IP rate limit on the unauthenticated report route.
func (h *Handler) Router(cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	limiter := newIPRateLimiter(cfg.ReportRatePerMin, cfg.ReportBurst)

	r.Route("/heatmap/v1", func(r chi.Router) {
		r.Post("/{namespace}", h.handleQuery)
		r.With(limiter.Middleware).Post("/{namespace}/report", h.handleReport)
	})
	return r
}

type queryRequest struct {
	Action string          `json:"action"`
	Parts  json.RawMessage `json:"parts"`
	GridID int64           `json:"grid_id"`
}

type reportRequest struct {
	Action string                 `json:"action"`
	Parts  json.RawMessage        `json:"parts"`
	Data   reports.NewReportInput `json:"data"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, CodeMissingAction, "action is required")
		return
	}
	if !hasParts(req.Parts) {
		writeError(w, http.StatusBadRequest, CodeMissingParts, "parts is required")
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "self":
		if req.GridID == 0 {
			writeError(w, http.StatusBadRequest, CodeMissingGridID, "grid_id is required")
			return
		}
		detail, err := h.queries.GetSelf(ctx, req.GridID, h.divisor)
		if err != nil {
			h.serverError(w, "get self", err)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case "a0", "a1", "a2", "a3", "world":
		if req.GridID == 0 {
			writeError(w, http.StatusBadRequest, CodeMissingGridID, "grid_id is required")
			return
		}
		level, err := grid.ParseLevel(req.Action)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadAction, err.Error())
			return
		}
		stat, ok, err := h.queries.GetLevel(ctx, req.GridID, level, h.divisor)
		if err != nil {
			h.serverError(w, "get level", err)
			return
		}
		if !ok {
			// No data at this level is an expected outcome the client
			// branches on, not an error.
			writeJSON(w, http.StatusOK, false)
			return
		}
		writeJSON(w, http.StatusOK, stat)

	case "grid_data":
		data, err := h.queries.GetGridData(ctx)
		if err != nil {
			h.serverError(w, "get grid data", err)
			return
		}
		writeJSON(w, http.StatusOK, data)

	case "activity_data":
		writeJSON(w, http.StatusOK, []any{})

	default:
		writeError(w, http.StatusBadRequest, CodeBadAction, "unknown action "+req.Action)
	}
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, CodeMissingAction, "action is required")
		return
	}
	if req.Action != "new_report" {
		writeError(w, http.StatusBadRequest, CodeBadAction, "unknown action "+req.Action)
		return
	}
	if !hasParts(req.Parts) {
		writeError(w, http.StatusBadRequest, CodeMissingParts, "parts is required")
		return
	}

	res, err := h.reports.NewReport(r.Context(), &req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "query failed")
}

func hasParts(parts json.RawMessage) bool {
	return len(parts) > 0 && !bytes.Equal(parts, []byte("null"))
}
