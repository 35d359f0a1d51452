// Package middleware exposes HTTP adapters over the shopauth engine: a
// throttle gate for the credential routes and a bearer-token guard for
// everything behind them.
//
// # Handlers
//
//   - [Throttle] — runs the engine's rate-limit guard before the wrapped
//     handler; rejected requests get 429 with a Retry-After style body.
//   - [Auth] — reads the Authorization header, validates the access token,
//     and injects the result into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It does NOT
// implement authentication or throttling logic itself.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the engine).
//   - Count requests itself (delegates to the guard).
//   - Log raw client IPs.
package middleware
