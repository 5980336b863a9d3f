// Package respond writes the JSON envelope every API response uses:
// {"success": true, "data": ...} or {"success": false, "error": "..."}.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, envelope{Success: true, Data: data})
}

// Fail writes a failure with an explicit status and message.
func Fail(w http.ResponseWriter, status int, msg string) {
	write(w, status, envelope{Error: msg})
}

// Conflict reports a 409 that carries data the caller needs to resolve it.
func Conflict(w http.ResponseWriter, msg string, data any) {
	write(w, http.StatusConflict, envelope{Error: msg, Data: data})
}

func BadRequest(w http.ResponseWriter, msg string) {
	Fail(w, http.StatusBadRequest, msg)
}

func Unauthorized(w http.ResponseWriter) {
	Fail(w, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(w http.ResponseWriter) {
	Fail(w, http.StatusForbidden, "Unauthorized")
}

// Error maps err to a status by its apperr.Kind. Internal errors are logged
// and replaced with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)

	if kind == apperr.KindInternal {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		Fail(w, http.StatusInternalServerError, "Something went wrong")

		return
	}

	Fail(w, statusOf(kind), apperr.Message(err, ""))
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// Decode reads a JSON body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return apperr.Validation("malformed JSON body")
		}

		return apperr.Validation("invalid request body: " + err.Error())
	}

	return nil
}
