// Package response builds the {success, message, data|errors, timestamp}
// envelope returned by job workers and the webhook endpoint.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"notification-workers/internal/common/errors"
)

// Envelope is the caller-facing result of every operation.
type Envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Data      interface{}         `json:"data,omitempty"`
	Errors    []errors.FieldError `json:"errors,omitempty"`
	ErrorCode string              `json:"errorCode,omitempty"`
	Timestamp string              `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func Success(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data, Timestamp: now()}
}

// Failure renders err. Field errors of a validation failure are carried in
// Errors.
func Failure(err error) Envelope {
	env := Envelope{Success: false, Timestamp: now()}
	if se, ok := errors.AsStandard(err); ok {
		env.Message = se.Message
		env.Errors = se.Fields
		env.ErrorCode = string(se.Code)
		return env
	}
	env.Message = "Erreur interne du serveur"
	env.ErrorCode = string(errors.ErrCodeInternal)
	return env
}

// ToVariables flattens the envelope into job output variables.
func (e Envelope) ToVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"success":   e.Success,
		"message":   e.Message,
		"timestamp": e.Timestamp,
	}
	if e.Data != nil {
		vars["data"] = e.Data
	}
	if len(e.Errors) > 0 {
		vars["errors"] = e.Errors
	}
	if e.ErrorCode != "" {
		vars["errorCode"] = e.ErrorCode
	}
	return vars
}

// StatusCode maps an error kind to the HTTP status used on the wire.
func StatusCode(err error) int {
	switch errors.KindOf(err) {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidState:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDeliveryFailed:
		return http.StatusBadGateway
	case errors.ErrCodeDatabase:
		return http.StatusServiceUnavailable
	case errors.ErrCodeRenderError, errors.ErrCodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// WriteJSON writes env with the given status code.
func WriteJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
