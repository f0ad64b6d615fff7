// Package httputil provides shared HTTP response and decoding helpers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rankboard/rankboard/internal/errors"
	"github.com/rankboard/rankboard/internal/logging"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes a structured error body.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// WriteServiceError writes err as a structured response, downgrading unknown
// errors to an opaque internal error.
func WriteServiceError(w http.ResponseWriter, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("internal error", err)
	}
	WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

// BadRequest writes a 400 with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, string(errors.CodeInvalidInput), message, nil)
}

// Unauthorized writes a 401. An empty message gets a generic one.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}

// InternalError writes a 500 with the given message.
func InternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, string(errors.CodeInternal), message, nil)
}

// DecodeJSON decodes the request body into v, writing a 400 and returning
// false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// RequireUserID extracts the authenticated user id from the request context,
// writing a 401 and returning false when absent.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		Unauthorized(w, "")
		return "", false
	}
	return userID, true
}
