// Package stores provides ready-made CredentialStore implementations.
//
// The Redis store keeps credentials as JSON blobs and fits deployments
// that already run Redis for sessions and lockouts. The pgstore
// subpackage offers a PostgreSQL-backed alternative for installations
// that want credentials in their primary database.
//
// # What this package must NOT do
//
//   - Interpret credential contents; blobs round-trip untouched.
//   - Cache: the gate reads through on every check by design of the
//     fail-closed pipeline.
package stores
