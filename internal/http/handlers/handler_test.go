package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ekh_mining/internal/identity"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/service"
	"ekh_mining/internal/session"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{identity.ErrUnauthenticated, http.StatusUnauthorized},
		{session.ErrNotSignedIn, http.StatusUnauthorized},
		{service.ErrInvalidCode, http.StatusBadRequest},
		{service.ErrSelfReferral, http.StatusBadRequest},
		{service.ErrAlreadyReferred, http.StatusConflict},
		{service.ErrReferrerCapped, http.StatusConflict},
		{service.ErrClaimPending, http.StatusConflict},
		{fmt.Errorf("load: %w", repository.ErrNotFound), http.StatusNotFound},
		{&retry.ExhaustedError{Op: "profile.update", Attempts: 4, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{fmt.Errorf("credit referee: %w", &retry.ExhaustedError{Op: "profile.update", Attempts: 4, Err: errors.New("x")}), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}
