// Package pgstore implements a PostgreSQL-backed CredentialStore on
// pgx, for deployments that keep security material in the primary
// database instead of Redis.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gatekit "github.com/MrEthical07/gatekit"
)

// Schema creates the credential table. Run it once at deploy time or
// through the application's migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS totp_credentials (
    account_id   TEXT PRIMARY KEY,
    secret       TEXT NOT NULL,
    backup_codes TEXT[] NOT NULL DEFAULT '{}',
    enabled      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   BIGINT NOT NULL,
    verified_at  BIGINT NOT NULL DEFAULT 0
);
`

// Compile-time interface assertion.
var _ gatekit.CredentialStore = (*CredentialStore)(nil)

// CredentialStore defines a public type used by gatekit APIs.
//
// CredentialStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// EnsureSchema applies the credential table schema.
func (s *CredentialStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("credential schema: %w", err)
	}
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *CredentialStore) Get(ctx context.Context, accountID string) (*gatekit.TOTPCredential, error) {
	const query = `
SELECT account_id, secret, backup_codes, enabled, created_at, verified_at
FROM totp_credentials
WHERE account_id = $1`

	var credential gatekit.TOTPCredential
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&credential.AccountID,
		&credential.Secret,
		&credential.BackupCodes,
		&credential.Enabled,
		&credential.CreatedAt,
		&credential.VerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential get: %w", err)
	}
	return &credential, nil
}

// Upsert describes the upsert operation and its observable behavior.
//
// Upsert may return an error when input validation, dependency calls, or security checks fail.
// Upsert does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *CredentialStore) Upsert(ctx context.Context, credential *gatekit.TOTPCredential) error {
	if credential == nil || credential.AccountID == "" {
		return errors.New("credential account id required")
	}

	const query = `
INSERT INTO totp_credentials (account_id, secret, backup_codes, enabled, created_at, verified_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (account_id) DO UPDATE SET
    secret       = EXCLUDED.secret,
    backup_codes = EXCLUDED.backup_codes,
    enabled      = EXCLUDED.enabled,
    created_at   = EXCLUDED.created_at,
    verified_at  = EXCLUDED.verified_at`

	backupCodes := credential.BackupCodes
	if backupCodes == nil {
		backupCodes = []string{}
	}
	if _, err := s.pool.Exec(ctx, query,
		credential.AccountID,
		credential.Secret,
		backupCodes,
		credential.Enabled,
		credential.CreatedAt,
		credential.VerifiedAt,
	); err != nil {
		return fmt.Errorf("credential upsert: %w", err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *CredentialStore) Delete(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM totp_credentials WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("credential delete: %w", err)
	}
	return nil
}
