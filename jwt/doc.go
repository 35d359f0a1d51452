// Package jwt signs and verifies the two token shapes the engine hands out:
// short-lived access tokens carrying identity and roles, and opaque-looking
// refresh tokens whose only interesting claim is the rotation id (jti).
//
// The package never touches storage. Whether a refresh token's jti is still
// live is the token store's business; this package only vouches for the
// signature and the registered time claims.
//
// # What this package must NOT do
//
//   - No revocation checks. A parsed refresh token is cryptographically
//     sound, nothing more.
//   - No key fetching. Keys arrive through Config and are immutable after
//     NewManager.
package jwt
