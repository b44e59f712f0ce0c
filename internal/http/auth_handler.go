package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
)

type identityService interface {
	SignIn(ctx context.Context) (application.Account, error)
	SignInLocal(ctx context.Context, email, password string) (application.Account, error)
	SignOut(ctx context.Context) error
	CurrentAccount() (application.Account, bool)
}

type sessionIssuer interface {
	Issue(ctx context.Context, account application.Account) (application.WebSession, error)
	RevokeAll(ctx context.Context) error
}

// AuthHandler exposes sign-in, sign-out and the current-account lookup.
type AuthHandler struct {
	identity  identityService
	sessions  sessionIssuer
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(identity identityService, sessions sessionIssuer, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{identity: identity, sessions: sessions, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

type signInRequest struct {
	Mode     string `json:"mode"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Account   application.Account `json:"account"`
	Token     string              `json:"token"`
	ExpiresAt string              `json:"expires_at"`
}

// CreateSession signs the user in: the federated flow against the identity
// provider, or the local fallback when requested.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateSession", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode sign-in request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	mode := strings.TrimSpace(strings.ToLower(req.Mode))
	logger := h.log(r.Context(), "CreateSession", "mode", mode)

	var (
		account application.Account
		err     error
	)
	switch mode {
	case "", "federated":
		account, err = h.identity.SignIn(r.Context())
	case "local":
		account, err = h.identity.SignInLocal(r.Context(), req.Email, req.Password)
	default:
		h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Message: "mode must be \"federated\" or \"local\""})
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "sign-in failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	session, err := h.sessions.Issue(r.Context(), account)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to issue session", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	setSessionCookie(w, session.Token, session.ExpiresAt)
	w.Header().Set("X-Session-Token", session.Token)

	logger.InfoContext(r.Context(), "user signed in", "username", account.Username, "mock", account.Mock)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, signInResponse{
		Account:   account,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// DeleteSession signs out, clearing identity artifacts and every issued web
// session.
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	logger := h.log(r.Context(), "DeleteSession")

	if err := h.identity.SignOut(r.Context()); err != nil {
		logger.ErrorContext(r.Context(), "sign-out failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if err := h.sessions.RevokeAll(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "failed to revoke web sessions", "error", err)
	}

	clearSessionCookie(w)
	logger.InfoContext(r.Context(), "signed out")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// GetAccount returns the current account, or 404 when none is established.
func (h *AuthHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.identity.CurrentAccount()
	if !ok {
		h.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "No account is signed in."})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, account)
}
