// Package scan performs request-input validation for the security gate:
// content-type checks for mutating methods, a body-size ceiling, and a
// suspicious-pattern sweep over headers, query parameters, and body.
//
// The scanner is a pure computation: no I/O, no allocation of the body (the
// caller captures it), and no panics on arbitrary input. It reports
// violations as human-readable strings; the gate turns a non-empty list into
// a 400.
//
// # What this package must NOT do
//
//   - Mutate or consume the request; the caller owns body capture.
//   - Attempt to sanitize input. Detection only; rejected means rejected.
package scan
