package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studyhub/profiles/internal/operations"
)

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type errorEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Errors  interface{} `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	if message == "" {
		message = "Success"
	}
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Message: message})
}

// writeOperationError is the one place workflow errors become status codes.
func writeOperationError(w http.ResponseWriter, err error) {
	var opErr *operations.Error
	if !errors.As(err, &opErr) {
		writeError(w, http.StatusInternalServerError, "Error occurred")
		return
	}
	var fields interface{}
	if len(opErr.Fields) > 0 {
		fields = opErr.Fields
	}
	writeJSON(w, statusFor(opErr.Kind), errorEnvelope{Success: false, Message: opErr.Message, Errors: fields})
}

func statusFor(kind operations.Kind) int {
	switch kind {
	case operations.KindValidation, operations.KindConflict:
		return http.StatusBadRequest
	case operations.KindAuthentication:
		return http.StatusUnauthorized
	case operations.KindAuthorization:
		return http.StatusForbidden
	case operations.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
