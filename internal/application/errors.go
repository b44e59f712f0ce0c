package application

import "errors"

var (
	// ErrInteractionConflict is returned when an interactive sign-in flow is
	// already in progress; callers must wait for it to finish and retry.
	ErrInteractionConflict = errors.New("application: interactive sign-in already in progress")
	// ErrNoActiveSession is returned when an access token is requested with
	// no established account.
	ErrNoActiveSession = errors.New("application: no active session")
	// ErrTokenUnavailable is returned when the current account can never
	// yield a bearer token, such as the fabricated local fallback account.
	ErrTokenUnavailable = errors.New("application: bearer token unavailable")
	// ErrRemoteUnavailable is returned when the external data API cannot be
	// reached; it is always non-fatal and triggers the local fallback tier.
	ErrRemoteUnavailable = errors.New("application: remote service unavailable")
	// ErrInteractionRequired is the token provider's signal that silent
	// acquisition failed and an interactive flow is needed.
	ErrInteractionRequired = errors.New("application: interaction required")
	// ErrInvalidCredentials is returned when supplied credentials do not
	// verify against the configured local fallback hash.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSessionExpired is returned when a web session token has passed its
	// expiry and the caller must re-authenticate.
	ErrSessionExpired = errors.New("application: session expired")
)

// ValidationError captures field level validation issues that callers can
// surface to users, such as empty credential fields on the fallback form.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
