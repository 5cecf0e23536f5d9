package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Error codes carried in the uniform error shape.
const (
	CodeMissingAction = "missing_action"
	CodeMissingParts  = "missing_parts"
	CodeMissingGridID = "missing_grid_id"
	CodeBadAction     = "bad_action"
	CodeBadRequest    = "bad_request"
	CodeRateLimited   = "rate_limited"
	CodeInternal      = "internal"
)

// apiError is the uniform error body for every failed request.
type apiError struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: true, Code: code, Message: message, Status: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
