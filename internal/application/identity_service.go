package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/StepsArtworks/rollcall/internal/persistence"
)

// Artifact keys owned by the identity service. Provider-issued state lives
// under the identity prefix and is only ever bulk-cleared at sign-out.
const (
	identityArtifactPrefix = "identity."
	accountArtifactKey     = "identity.account"
	providerStateKey       = "identity.provider_state"
	fallbackAccountKey     = "account.fallback"
)

// InteractionMode selects which interactive acquisition mechanism the token
// provider should run.
type InteractionMode string

const (
	// InteractionPrimary is the preferred interactive mechanism.
	InteractionPrimary InteractionMode = "primary"
	// InteractionSecondary is attempted when the primary mechanism fails to
	// complete.
	InteractionSecondary InteractionMode = "secondary"
)

// TokenResult is what the external identity provider hands back on a
// successful acquisition. Artifact is opaque provider state persisted for
// later silent renewal.
type TokenResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     Account
	Artifact    string
}

// TokenProvider abstracts the external identity provider. Implementations
// signal ErrInteractionRequired from AcquireSilent when no cached session can
// be renewed without the user.
type TokenProvider interface {
	AcquireSilent(ctx context.Context, artifact string) (TokenResult, error)
	AcquireInteractive(ctx context.Context, mode InteractionMode) (TokenResult, error)
	ClearSession(ctx context.Context, artifact string) error
}

// IdentityService owns sign-in, sign-out and token retrieval for the current
// account. It is constructed once and injected into consumers rather than
// living as a package global.
type IdentityService struct {
	provider  TokenProvider
	artifacts persistence.ArtifactStore
	localHash string
	now       func() time.Time
	logger    *slog.Logger

	interaction interactionLock

	mu       sync.Mutex
	account  *Account
	token    string
	tokenExp time.Time
}

// NewIdentityService constructs an IdentityService. The provider may be nil
// when the service runs offline, in which case only the local fallback
// sign-in is available. localHash enables the fallback credential check when
// non-empty.
func NewIdentityService(provider TokenProvider, artifacts persistence.ArtifactStore, localHash string, now func() time.Time, logger *slog.Logger) *IdentityService {
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		provider:  provider,
		artifacts: artifacts,
		localHash: localHash,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

// Restore reloads a persisted account from the artifact store so that a
// restarted process keeps its session, mirroring persisted browser state.
func (s *IdentityService) Restore(ctx context.Context) {
	logger := s.loggerWith(ctx, "Restore")
	for _, key := range []string{accountArtifactKey, fallbackAccountKey} {
		raw, err := s.artifacts.GetArtifact(ctx, key)
		if err != nil {
			continue
		}
		var account Account
		if err := json.Unmarshal([]byte(raw), &account); err != nil {
			logger.WarnContext(ctx, "discarding unreadable persisted account", "key", key, "error", err)
			continue
		}
		s.mu.Lock()
		s.account = &account
		s.mu.Unlock()
		logger.InfoContext(ctx, "restored persisted account", "username", account.Username, "mock", account.Mock)
		return
	}
}

// CurrentAccount returns the signed-in account, if any. It never fails.
func (s *IdentityService) CurrentAccount() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return Account{}, false
	}
	return *s.account, true
}

// SignIn establishes an account: silent reuse of persisted provider state
// first, then the interactive sequence (primary mechanism, secondary as
// fallback). A second interactive attempt while one is running fails with
// ErrInteractionConflict and leaves the first flow untouched.
func (s *IdentityService) SignIn(ctx context.Context) (account Account, err error) {
	logger := s.loggerWith(ctx, "SignIn")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "sign-in succeeded", "username", account.Username)
	}()

	if s.provider == nil {
		err = fmt.Errorf("%w: no identity provider configured", ErrRemoteUnavailable)
		return
	}

	if artifact, artifactErr := s.artifacts.GetArtifact(ctx, providerStateKey); artifactErr == nil {
		result, silentErr := s.provider.AcquireSilent(ctx, artifact)
		if silentErr == nil {
			err = s.adopt(ctx, result)
			account = result.Account
			return
		}
		if !errors.Is(silentErr, ErrInteractionRequired) {
			logger.WarnContext(ctx, "silent sign-in failed, falling back to interactive", "error", silentErr)
		}
	}

	var result TokenResult
	result, err = s.acquireInteractive(ctx)
	if err != nil {
		return
	}
	if err = s.adopt(ctx, result); err != nil {
		return
	}
	account = result.Account
	return
}

// SignInLocal is the degraded path: it fabricates an account from the
// supplied credentials without contacting the identity provider. The account
// never yields a bearer token, so downstream reads fall back to local data.
func (s *IdentityService) SignInLocal(ctx context.Context, email, password string) (account Account, err error) {
	logger := s.loggerWith(ctx, "SignInLocal")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "local sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "local sign-in succeeded", "username", account.Username)
	}()

	email = strings.TrimSpace(email)
	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	}
	if password == "" {
		vErr.add("password", "password is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.localHash != "" {
		if err = VerifyPassword(s.localHash, password); err != nil {
			err = ErrInvalidCredentials
			return
		}
	} else {
		logger.WarnContext(ctx, "no local password hash configured; accepting fallback credentials unverified")
	}

	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	account = Account{Name: name, Username: email, Mock: true}

	raw, marshalErr := json.Marshal(account)
	if marshalErr != nil {
		err = fmt.Errorf("encode fallback account: %w", marshalErr)
		return
	}
	if err = s.artifacts.PutArtifact(ctx, fallbackAccountKey, string(raw)); err != nil {
		err = fmt.Errorf("persist fallback account: %w", err)
		return
	}

	s.mu.Lock()
	s.account = &account
	s.token = ""
	s.tokenExp = time.Time{}
	s.mu.Unlock()
	return
}

// SignOut clears provider-held session state and every locally persisted
// identity artifact. Signing out with no session is a no-op, but a
// conflicting in-flight interactive flow still fails.
func (s *IdentityService) SignOut(ctx context.Context) (err error) {
	logger := s.loggerWith(ctx, "SignOut")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-out failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "signed out")
	}()

	if err = s.interaction.acquire(); err != nil {
		return
	}
	defer s.interaction.release()

	if s.provider != nil {
		if artifact, artifactErr := s.artifacts.GetArtifact(ctx, providerStateKey); artifactErr == nil {
			if clearErr := s.provider.ClearSession(ctx, artifact); clearErr != nil {
				logger.WarnContext(ctx, "failed to clear provider session", "error", clearErr)
			}
		}
	}

	if err = s.artifacts.DeleteArtifactsByPrefix(ctx, identityArtifactPrefix); err != nil {
		err = fmt.Errorf("clear identity artifacts: %w", err)
		return
	}
	if err = s.artifacts.DeleteArtifact(ctx, fallbackAccountKey); err != nil {
		err = fmt.Errorf("clear fallback account: %w", err)
		return
	}

	s.mu.Lock()
	s.account = nil
	s.token = ""
	s.tokenExp = time.Time{}
	s.mu.Unlock()
	return
}

// AccessToken returns a bearer token for the current account, renewing
// silently first and running the interactive sequence when renewal requires
// the user. Fabricated fallback accounts never have a token.
func (s *IdentityService) AccessToken(ctx context.Context) (token string, err error) {
	logger := s.loggerWith(ctx, "AccessToken")
	defer func() {
		if err != nil {
			logger.DebugContext(ctx, "access token unavailable", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	s.mu.Lock()
	account := s.account
	cached := s.token
	expiry := s.tokenExp
	s.mu.Unlock()

	if account == nil {
		err = ErrNoActiveSession
		return
	}
	if account.Mock {
		err = ErrTokenUnavailable
		return
	}
	if cached != "" && s.now().Add(time.Minute).Before(expiry) {
		token = cached
		return
	}

	if s.provider == nil {
		err = ErrTokenUnavailable
		return
	}

	artifact, _ := s.artifacts.GetArtifact(ctx, providerStateKey)
	result, silentErr := s.provider.AcquireSilent(ctx, artifact)
	if silentErr == nil {
		if err = s.adopt(ctx, result); err != nil {
			return
		}
		token = result.AccessToken
		return
	}
	if !errors.Is(silentErr, ErrInteractionRequired) {
		err = fmt.Errorf("%w: %v", ErrRemoteUnavailable, silentErr)
		return
	}

	result, err = s.acquireInteractive(ctx)
	if err != nil {
		return
	}
	if err = s.adopt(ctx, result); err != nil {
		return
	}
	token = result.AccessToken
	return
}

// acquireInteractive runs the guarded interactive sequence: primary
// mechanism, then secondary when the primary fails to complete.
func (s *IdentityService) acquireInteractive(ctx context.Context) (TokenResult, error) {
	if err := s.interaction.acquire(); err != nil {
		return TokenResult{}, err
	}
	defer s.interaction.release()

	logger := s.loggerWith(ctx, "acquireInteractive")

	result, err := s.provider.AcquireInteractive(ctx, InteractionPrimary)
	if err == nil {
		return result, nil
	}
	logger.WarnContext(ctx, "primary interactive mechanism failed, trying secondary", "error", err)

	result, err = s.provider.AcquireInteractive(ctx, InteractionSecondary)
	if err != nil {
		return TokenResult{}, fmt.Errorf("interactive sign-in failed: %w", err)
	}
	return result, nil
}

// adopt installs an acquisition result as the current session and persists
// its artifacts.
func (s *IdentityService) adopt(ctx context.Context, result TokenResult) error {
	raw, err := json.Marshal(result.Account)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	if err := s.artifacts.PutArtifact(ctx, accountArtifactKey, string(raw)); err != nil {
		return fmt.Errorf("persist account: %w", err)
	}
	if result.Artifact != "" {
		if err := s.artifacts.PutArtifact(ctx, providerStateKey, result.Artifact); err != nil {
			return fmt.Errorf("persist provider state: %w", err)
		}
	}

	account := result.Account
	s.mu.Lock()
	s.account = &account
	s.token = result.AccessToken
	s.tokenExp = result.ExpiresAt
	s.mu.Unlock()
	return nil
}
