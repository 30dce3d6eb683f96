package gatekit

import "errors"

var (
	// ErrGateNotReady is an exported constant or variable used by the security gate.
	ErrGateNotReady = errors.New("gate not initialized")
	// ErrAccountRequired is an exported constant or variable used by the security gate.
	ErrAccountRequired = errors.New("account id required")
	// ErrTOTPNotConfigured is an exported constant or variable used by the security gate.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled is an exported constant or variable used by the security gate.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPInvalid is an exported constant or variable used by the security gate.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPUnavailable is an exported constant or variable used by the security gate.
	ErrTOTPUnavailable = errors.New("totp backend unavailable")
	// ErrBackupCodeInvalid is an exported constant or variable used by the security gate.
	ErrBackupCodeInvalid = errors.New("invalid backup code")
	// ErrBackupCodesExhausted is an exported constant or variable used by the security gate.
	ErrBackupCodesExhausted = errors.New("no backup codes remaining")
	// ErrGrantInvalid is an exported constant or variable used by the security gate.
	ErrGrantInvalid = errors.New("invalid two-factor grant")
	// ErrAccountLocked is an exported constant or variable used by the security gate.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrLockoutUnavailable is an exported constant or variable used by the security gate.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrSessionUnavailable is an exported constant or variable used by the security gate.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrCredentialStoreUnavailable is an exported constant or variable used by the security gate.
	ErrCredentialStoreUnavailable = errors.New("credential store unavailable")
)
