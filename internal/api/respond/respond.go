// Package respond holds the JSON envelope shared by the API handler packages.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

// PageMeta describes one page of a list.
type PageMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type pageResponse struct {
	Data any      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// Error writes {"error": {...}} with the given status.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, r, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// OK writes {"data": ...} with 200.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	write(w, r, http.StatusOK, dataResponse{Data: data})
}

// Page writes {"data": [...], "meta": {...}} with 200.
func Page(w http.ResponseWriter, r *http.Request, data any, meta PageMeta) {
	write(w, r, http.StatusOK, pageResponse{Data: data, Meta: meta})
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("json encode error")
	}
}
