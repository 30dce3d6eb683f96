package gatekit

import (
	"context"
	"fmt"

	"github.com/MrEthical07/gatekit/otp"
)

// SetupTOTP begins two-factor enrollment for an account. It generates a
// fresh secret and backup codes and persists them in a disabled state;
// the account must confirm with a live code before two-factor is
// enforced. The returned secret and codes are not retrievable again.
//
// SetupTOTP may return an error when input validation, dependency calls, or security checks fail.
// SetupTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) SetupTOTP(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if g == nil || g.credentials == nil {
		return nil, ErrGateNotReady
	}
	if accountID == "" {
		return nil, ErrAccountRequired
	}

	existing, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, err := otp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	codes, err := otp.GenerateBackupCodes(g.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}

	credential := &TOTPCredential{
		AccountID:   accountID,
		Secret:      secret,
		BackupCodes: codes,
		Enabled:     false,
		CreatedAt:   g.now().Unix(),
	}
	if err := g.storeCredential(ctx, credential); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "totp.setup",
		Severity:  SeverityInfo,
		AccountID: accountID,
		Success:   true,
	})

	return &TOTPSetup{
		Secret:       secret,
		ProvisionURI: otp.ProvisionURI(secret, accountID, g.config.TOTP.Issuer),
		BackupCodes:  append([]string(nil), codes...),
	}, nil
}

// ConfirmTOTP completes enrollment by verifying a live code against the
// pending secret. Success flips the credential to enabled and stamps the
// verification time; every outstanding two-factor grant predates that
// stamp and is therefore invalid.
//
// ConfirmTOTP may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) ConfirmTOTP(ctx context.Context, accountID, code string) error {
	if g == nil || g.credentials == nil {
		return ErrGateNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	credential, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if credential == nil {
		return ErrTOTPNotConfigured
	}
	if credential.Enabled {
		return ErrTOTPAlreadyEnabled
	}

	if !otp.VerifyCode(credential.Secret, code, g.now(), g.config.TOTP.Skew) {
		g.metrics.Inc(MetricTOTPFailure)
		g.emitAudit(ctx, AuditEvent{
			EventType: "totp.confirm",
			Severity:  SeverityWarning,
			AccountID: accountID,
			Success:   false,
			Error:     ErrTOTPInvalid.Error(),
		})
		return ErrTOTPInvalid
	}

	credential.Enabled = true
	credential.VerifiedAt = g.now().Unix()
	if err := g.storeCredential(ctx, credential); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	g.metrics.Inc(MetricTOTPSuccess)
	g.emitAudit(ctx, AuditEvent{
		EventType: "totp.confirm",
		Severity:  SeverityInfo,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// VerifyTOTP checks a live code for an enabled credential and, on
// success, issues a two-factor grant bound to the account, the session,
// and the current credential generation. Failed attempts feed the
// lockout tracker; a locked account is rejected before any code math.
//
// VerifyTOTP may return an error when input validation, dependency calls, or security checks fail.
// VerifyTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) VerifyTOTP(ctx context.Context, accountID, sessionToken, code, ip string) (string, error) {
	if g == nil || g.credentials == nil {
		return "", ErrGateNotReady
	}
	if accountID == "" {
		return "", ErrAccountRequired
	}

	if err := g.rejectIfLocked(ctx, accountID); err != nil {
		return "", err
	}

	credential, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if credential == nil || !credential.Enabled {
		return "", ErrTOTPNotConfigured
	}

	if !otp.VerifyCode(credential.Secret, code, g.now(), g.config.TOTP.Skew) {
		g.metrics.Inc(MetricTOTPFailure)
		g.noteFailedAttempt(ctx, accountID, ip, "totp.verify")
		return "", ErrTOTPInvalid
	}

	g.clearFailedAttempts(ctx, accountID)
	grant, err := g.grants.Issue(accountID, sessionToken, credential.VerifiedAt)
	if err != nil {
		return "", err
	}

	g.metrics.Inc(MetricTOTPSuccess)
	g.metrics.Inc(MetricGrantIssued)
	g.emitAudit(ctx, AuditEvent{
		EventType: "totp.verify",
		Severity:  SeverityInfo,
		AccountID: accountID,
		SessionID: sessionToken,
		IP:        ip,
		Success:   true,
	})
	return grant, nil
}

// UseBackupCode redeems one backup code in place of a live code. Each
// code works exactly once; the match is removed from the stored set
// before the grant is issued. Returns the grant and how many codes
// remain so the caller can warn the user.
//
// UseBackupCode may return an error when input validation, dependency calls, or security checks fail.
// UseBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) UseBackupCode(ctx context.Context, accountID, sessionToken, code, ip string) (string, int, error) {
	if g == nil || g.credentials == nil {
		return "", 0, ErrGateNotReady
	}
	if accountID == "" {
		return "", 0, ErrAccountRequired
	}

	if err := g.rejectIfLocked(ctx, accountID); err != nil {
		return "", 0, err
	}

	credential, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if credential == nil || !credential.Enabled {
		return "", 0, ErrTOTPNotConfigured
	}
	if len(credential.BackupCodes) == 0 {
		return "", 0, ErrBackupCodesExhausted
	}

	idx := otp.MatchBackupCode(code, credential.BackupCodes)
	if idx < 0 {
		g.metrics.Inc(MetricBackupCodeFailed)
		g.noteFailedAttempt(ctx, accountID, ip, "backup_code.use")
		return "", len(credential.BackupCodes), ErrBackupCodeInvalid
	}

	credential.BackupCodes = append(credential.BackupCodes[:idx], credential.BackupCodes[idx+1:]...)
	if err := g.storeCredential(ctx, credential); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	g.clearFailedAttempts(ctx, accountID)
	grant, err := g.grants.Issue(accountID, sessionToken, credential.VerifiedAt)
	if err != nil {
		return "", len(credential.BackupCodes), err
	}

	g.metrics.Inc(MetricBackupCodeUsed)
	g.metrics.Inc(MetricGrantIssued)
	g.emitAudit(ctx, AuditEvent{
		EventType: "backup_code.use",
		Severity:  SeverityWarning,
		AccountID: accountID,
		SessionID: sessionToken,
		IP:        ip,
		Success:   true,
		Details: map[string]string{
			"remaining": fmt.Sprintf("%d", len(credential.BackupCodes)),
		},
	})
	return grant, len(credential.BackupCodes), nil
}

// RegenerateBackupCodes replaces the stored backup codes with a fresh
// batch. Previously issued codes stop working immediately.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if g == nil || g.credentials == nil {
		return nil, ErrGateNotReady
	}
	if accountID == "" {
		return nil, ErrAccountRequired
	}

	credential, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if credential == nil || !credential.Enabled {
		return nil, ErrTOTPNotConfigured
	}

	codes, err := otp.GenerateBackupCodes(g.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	credential.BackupCodes = codes
	if err := g.storeCredential(ctx, credential); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "backup_codes.regenerate",
		Severity:  SeverityInfo,
		AccountID: accountID,
		Success:   true,
	})
	return append([]string(nil), codes...), nil
}

// DisableTOTP removes the credential entirely. Re-enabling later starts
// a new enrollment with a new secret and a new verification stamp, so no
// grant issued before the disable survives.
//
// DisableTOTP may return an error when input validation, dependency calls, or security checks fail.
// DisableTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) DisableTOTP(ctx context.Context, accountID string) error {
	if g == nil || g.credentials == nil {
		return ErrGateNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	credential, err := g.loadCredential(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if credential == nil {
		return ErrTOTPNotConfigured
	}

	if err := g.deleteCredential(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "totp.disable",
		Severity:  SeverityWarning,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// redeemInlineCode accepts a live TOTP code or an unused backup code
// submitted with a request in place of a grant. A matched backup code is
// consumed before the request proceeds; a store failure during the
// consume is returned so the caller fails closed instead of allowing a
// replayable code.
func (g *Gate) redeemInlineCode(ctx context.Context, accountID, ip string, credential *TOTPCredential, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	if otp.VerifyCode(credential.Secret, code, g.now(), g.config.TOTP.Skew) {
		g.metrics.Inc(MetricTOTPSuccess)
		g.clearFailedAttempts(ctx, accountID)
		return true, nil
	}

	if idx := otp.MatchBackupCode(code, credential.BackupCodes); idx >= 0 {
		credential.BackupCodes = append(credential.BackupCodes[:idx], credential.BackupCodes[idx+1:]...)
		if err := g.storeCredential(ctx, credential); err != nil {
			return false, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
		}
		g.metrics.Inc(MetricBackupCodeUsed)
		g.clearFailedAttempts(ctx, accountID)
		g.emitAudit(ctx, AuditEvent{
			EventType: "backup_code.use",
			Severity:  SeverityWarning,
			AccountID: accountID,
			IP:        ip,
			Success:   true,
			Details: map[string]string{
				"remaining": fmt.Sprintf("%d", len(credential.BackupCodes)),
			},
		})
		return true, nil
	}

	g.metrics.Inc(MetricTOTPFailure)
	g.noteFailedAttempt(ctx, accountID, ip, "totp.verify")
	return false, nil
}

func (g *Gate) storeCredential(ctx context.Context, credential *TOTPCredential) error {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.credentials.Upsert(checkCtx, credential)
}

func (g *Gate) deleteCredential(ctx context.Context, accountID string) error {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.credentials.Delete(checkCtx, accountID)
}
