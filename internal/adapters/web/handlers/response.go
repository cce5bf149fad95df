package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// maxBodyBytes bounds request bodies (1MB).
const maxBodyBytes = 1048576

// errorResponse is the body of every non-2xx JSON answer.
type errorResponse struct {
	Detail string `json:"detail"`
}

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError answers with the mapped status. Server-side failures are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error("request failed", zap.Error(err))
		writeDetail(w, status, http.StatusText(status))
		return
	}
	writeDetail(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}
