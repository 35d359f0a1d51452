// Package shopauth provides the authentication core of a storefront backend:
// JWT access tokens, rotating refresh tokens with reuse/theft detection, mass
// revocation, and an adaptive per-route brute-force guard backed by in-process
// fixed-window counters.
//
// The package is designed for concurrent server workloads: Engine and Guard
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// shopauth is the public surface. It exposes [Engine], [Guard], [Builder],
// [Config], and value types (TokenPair, RotateResult, AuthResult). Counter
// tables, IP handling, and window parsing live under internal/ and are never
// exported. Persistence of refresh-token records is behind [token.Store];
// user lookup is behind [UserProvider] — this package owns no user data.
//
// # What this package must NOT do
//
//   - Hash passwords or store user/product rows (collaborator concerns behind
//     narrow interfaces).
//   - Write a raw client IP to any log line or audit event (masked only).
//   - Retry failed store or signature operations (errors propagate unmodified).
//
// # Performance contract
//
// ValidateAccess is the hot path: purely cryptographic, no store round-trip.
// Rotate, IssueOnLogin, Logout, and RevokeAll are allowed store round-trips.
// Guard.Check touches only the in-process counter table.
package shopauth
