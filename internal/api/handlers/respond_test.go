package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pillwise/rx-orders/internal/domain/order"
)

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{order.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("order 7: %w", order.ErrNotFound), http.StatusNotFound},
		{order.ErrUnauthorized, http.StatusForbidden},
		{order.ErrInvalidDecision, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: denial requires a reason", order.ErrInvalidDecision), http.StatusUnprocessableEntity},
		{order.ErrNoRefillsAvailable, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		domainError(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("domainError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
	}
}
