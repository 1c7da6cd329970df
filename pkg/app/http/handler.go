// Package http provides HTTP utilities including chi-compatible error handling
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/creatorpay/escrowd/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc
// This allows using clean error-returning handlers with any router (chi, http.ServeMux, etc.)
//
// Usage with chi:
//
//	r.Post("/deposits", http.HandleError(handler.deposit))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler renders errors returned from HTTP handlers. Errors of
// the settlement taxonomy carry their kind so callers can dispatch without
// parsing message text; everything else is an opaque 500.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError

	type errorResponse struct {
		ErrMsg  string `json:"error"`
		ErrKind string `json:"kind"`
		ErrCode int    `json:"code"`
	}

	if errors.As(err, &svcErr) && !apperrors.IsInternalError(err) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(svcErr.StatusCode())
		_ = json.NewEncoder(w).Encode(&errorResponse{
			ErrMsg:  svcErr.Message,
			ErrKind: svcErr.Kind.String(),
			ErrCode: svcErr.StatusCode(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(&errorResponse{
		ErrMsg:  "Unexpected Service Error",
		ErrKind: apperrors.KindInternal.String(),
		ErrCode: http.StatusInternalServerError,
	})
}
