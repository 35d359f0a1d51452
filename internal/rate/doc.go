// Package rate provides the internal primitives of the adaptive rate-limit
// guard: an injectable fixed-window counter table, the window-string parser,
// and client-IP extraction, validation, and log-masking.
//
// # Window semantics
//
// Fixed-window counters keyed by "profile:clientKey". An entry whose reset
// time has passed is logically absent even before the sweeper removes it:
// the next increment restarts the window at count 1. The sweep runs lazily
// from the request path, at most once per configured interval.
//
// # What this package must NOT do
//
//   - Decide which routes map to which profiles (that lives in the root
//     package's Guard).
//   - Log anything, raw IPs least of all. MaskIP is the only sanctioned form
//     of an address leaving this package for a log line.
//   - Be imported outside the shopauth module.
package rate
