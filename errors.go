package shopauth

import "errors"

var (
	// ErrUnauthorized is returned when an access token is missing, malformed,
	// or fails verification on a protected route.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenInvalid is returned for a malformed, unsigned, or unverifiable
	// bearer token. Rejecting it has no side effects.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for a recognized token past its expiry.
	// No revocation is performed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuseDetected is returned when a rotated or unknown refresh
	// token id is presented. All sessions of the claimed subject are revoked
	// before this error surfaces; the caller learns only that the token is
	// not usable.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrTokenUserMismatch is returned when a refresh token id resolves to a
	// different user than the token claims. No revocation is performed.
	ErrTokenUserMismatch = errors.New("refresh token user mismatch")
	// ErrRateLimitExceeded is returned by the guard when a client is over its
	// profile attempt budget. The message is fixed and leaks no counts.
	ErrRateLimitExceeded = errors.New("too many requests")
	// ErrUserNotFound is returned when the user provider cannot resolve a
	// subject id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned when an Engine method is called before
	// the engine was built with its required collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")
)
