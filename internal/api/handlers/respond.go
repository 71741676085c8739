// Package handlers provides HTTP handlers for the orders API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pillwise/rx-orders/internal/domain/order"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// domainError maps domain sentinels to HTTP status codes. Anything
// unrecognized is an internal error.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		jsonError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, order.ErrUnauthorized):
		jsonError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, order.ErrInvalidDecision):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, order.ErrNoRefillsAvailable):
		jsonError(w, "no refills available", http.StatusConflict)
	default:
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
