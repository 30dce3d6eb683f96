// Package otp implements the one-time-password primitives used by the gatekit
// security gate: the non-padded RFC 4648 Base32 codec, RFC 4226 HOTP dynamic
// truncation, RFC 6238 time-based codes with a configurable skew window,
// otpauth:// provisioning URIs, and single-use backup codes.
//
// # Architecture boundaries
//
// Everything here is a pure function over a secret and a time or counter. The
// package holds no state between calls, performs no I/O, and never touches a
// store. Credential persistence and one-time-use enforcement for backup codes
// belong to the caller.
//
// # What this package must NOT do
//
//   - Return errors for malformed codes or secrets: verification degrades to
//     a false result, secret decoding degrades to best-effort byte recovery.
//   - Import gatekit or any of its internal packages.
//   - Log, emit audit events, or read clocks other than the one passed in.
package otp
