// Package token persists refresh-token records and implements the atomic
// rotation that refresh-token reuse detection depends on.
//
// A [Record] is usable iff it is not revoked and not past expiry. Rotation
// revokes the old record and creates its replacement in one atomic step,
// revoke-then-create, so a crash mid-rotation fails closed (old token dead,
// no replacement issued) rather than fail-open.
//
// Two implementations ship with the package: [MemoryStore] for tests and
// single-node deployments, and [RedisStore] whose rotation runs inside a Lua
// script so concurrent presentations of the same token produce exactly one
// winner.
//
// # What this package must NOT do
//
//   - Sign, parse, or otherwise understand bearer tokens (records are
//     addressed by opaque ids).
//   - Decide what a failed rotation means for the subject's other sessions —
//     mass revocation on reuse is Engine policy.
package token
