package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/StepsArtworks/rollcall/internal/persistence"
)

const sessionArtifactPrefix = "session."

// WebSession is an issued transport-level session for the JSON API.
type WebSession struct {
	Token     string    `json:"token"`
	Account   Account   `json:"account"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager issues and validates web session tokens backed by the
// artifact store so sessions survive restarts alongside the identity
// artifacts they represent.
type SessionManager struct {
	artifacts persistence.ArtifactStore
	ttl       time.Duration
	now       func() time.Time
	newToken  func() string
	logger    *slog.Logger
}

// NewSessionManager constructs a SessionManager with the provided
// dependencies. A nil token generator defaults to random UUIDs.
func NewSessionManager(artifacts persistence.ArtifactStore, ttl time.Duration, now func() time.Time, newToken func() string, logger *slog.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	if newToken == nil {
		newToken = func() string { return uuid.NewString() }
	}
	return &SessionManager{
		artifacts: artifacts,
		ttl:       ttl,
		now:       now,
		newToken:  newToken,
		logger:    defaultLogger(logger),
	}
}

// Issue creates a session for the account and persists it.
func (m *SessionManager) Issue(ctx context.Context, account Account) (WebSession, error) {
	session := WebSession{
		Token:     m.newToken(),
		Account:   account,
		ExpiresAt: m.now().Add(m.ttl),
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return WebSession{}, fmt.Errorf("encode session: %w", err)
	}
	if err := m.artifacts.PutArtifact(ctx, sessionArtifactPrefix+session.Token, string(raw)); err != nil {
		return WebSession{}, fmt.Errorf("persist session: %w", err)
	}
	serviceLogger(ctx, m.logger, "SessionManager", "Issue").InfoContext(ctx, "session issued",
		"username", account.Username, "expires_at", session.ExpiresAt.UTC().Format(time.RFC3339))
	return session, nil
}

// Validate resolves a token to its account, rejecting unknown and expired
// tokens.
func (m *SessionManager) Validate(ctx context.Context, token string) (Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Account{}, ErrNoActiveSession
	}

	raw, err := m.artifacts.GetArtifact(ctx, sessionArtifactPrefix+token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Account{}, ErrNoActiveSession
		}
		return Account{}, fmt.Errorf("load session: %w", err)
	}

	var session WebSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return Account{}, fmt.Errorf("decode session: %w", err)
	}

	if !m.now().Before(session.ExpiresAt) {
		if err := m.artifacts.DeleteArtifact(ctx, sessionArtifactPrefix+token); err != nil {
			serviceLogger(ctx, m.logger, "SessionManager", "Validate").WarnContext(ctx, "failed to prune expired session", "error", err)
		}
		return Account{}, ErrSessionExpired
	}
	return session.Account, nil
}

// Revoke deletes a session token. Unknown tokens are not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return m.artifacts.DeleteArtifact(ctx, sessionArtifactPrefix+token)
}

// RevokeAll removes every issued session, used at sign-out so stale cookies
// cannot outlive the account they were minted for.
func (m *SessionManager) RevokeAll(ctx context.Context) error {
	return m.artifacts.DeleteArtifactsByPrefix(ctx, sessionArtifactPrefix)
}
