package session

// Session is one active login for an account.
//
// Session instances are value records passed in and out of the store; the
// store never caches them beyond a single operation.
type Session struct {
	Token      string
	AccountID  string
	DeviceInfo string
	IPAddress  string

	CreatedAt      int64
	LastActivityAt int64
	ExpiresAt      int64

	Active       bool
	TerminatedAt int64
}
