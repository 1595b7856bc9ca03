// Package http exposes the ledger over HTTP: the point-of-sale redemption
// endpoint, the internal sale hooks and the program administration routes.
package http

import (
	"encoding/json"
	"net/http"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
)

const msgInternal = "Erro interno ao processar a requisição."

type errorResponse struct {
	Error string `json:"error"`
}

type dataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusOf maps a business error kind to its HTTP status.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its operator-facing message. Internal errors
// are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeMessage(w, status, domain.MessageOf(err, msgInternal))
}

// decodeBody decodes a JSON body, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.BadRequest("Corpo da requisição inválido.")
	}
	return nil
}
