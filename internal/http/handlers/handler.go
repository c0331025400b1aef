package handlers

import (
	"context"
	"errors"
	"net/http"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/http/middleware"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/service"
	"ekh_mining/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	Sessions *session.Registry
	Verifier identity.TokenVerifier
	Upgrader *websocket.Upgrader
}

func NewHandler(sessions *session.Registry, verifier identity.TokenVerifier, upgrader *websocket.Upgrader) *Handler {
	return &Handler{Sessions: sessions, Verifier: verifier, Upgrader: upgrader}
}

// session возвращает сессию пользователя, при первом запросе выполняет вход
func (h *Handler) session(c *gin.Context) (*session.Orchestrator, bool) {
	return h.resolve(c, h.Sessions.Ensure)
}

type signInFunc func(context.Context, *domain.Identity, identity.Provider) (*session.Orchestrator, error)

func (h *Handler) resolve(c *gin.Context, signIn signInFunc) (*session.Orchestrator, bool) {
	ident, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	provider := identity.Bearer{Verifier: h.Verifier, Token: middleware.Token(c)}
	sess, err := signIn(c.Request.Context(), ident, provider)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func errorStatus(err error) (int, string) {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, session.ErrNotSignedIn):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest, "invalid referral code"
	case errors.Is(err, service.ErrSelfReferral):
		return http.StatusBadRequest, "cannot use your own referral code"
	case errors.Is(err, service.ErrAlreadyReferred):
		return http.StatusConflict, "referral already applied"
	case errors.Is(err, service.ErrReferrerCapped):
		return http.StatusConflict, "referrer has reached the referral limit"
	case errors.Is(err, service.ErrClaimPending):
		return http.StatusConflict, "another referral claim is being processed"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.As(err, &exhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "storage unavailable, try again"
	}
	return http.StatusInternalServerError, "internal error"
}
