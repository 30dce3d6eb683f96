package gatekit

import (
	"errors"
	"time"
)

// Config defines a public type used by gatekit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	TOTP      TOTPConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Grant     GrantConfig
	Scanner   ScannerConfig
	Gate      GateConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines a public type used by gatekit APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// Digits and period are pinned to the interoperable 6/30 profile by the otp
// package; only the skew window is tunable, and widening it trades security
// for usability.
type TOTPConfig struct {
	Enabled         bool
	Issuer          string
	Skew            int
	BackupCodeCount int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by gatekit APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Enabled           bool
	MaxFailedAttempts int
	LockDuration      time.Duration
	RedisPrefix       string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by gatekit APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// Window and MaxRequests are the fallback budget for routes whose policy
// does not carry its own. SharedCounters switches from the in-process table
// to Redis so multiple instances count against one budget.
type RateLimitConfig struct {
	Enabled        bool
	Window         time.Duration
	MaxRequests    int
	SharedCounters bool
	RedisPrefix    string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by gatekit APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	MaxConcurrent int
	TTL           time.Duration
	IdleTimeout   time.Duration
	RedisPrefix   string
}

/*
====================================
GRANT CONFIG
====================================
*/

// GrantConfig defines a public type used by gatekit APIs.
//
// GrantConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// SigningKey authenticates two-factor grant tokens; rotating it invalidates
// every outstanding grant, which is the intended kill switch.
type GrantConfig struct {
	TTL        time.Duration
	SigningKey []byte
}

/*
====================================
SCANNER CONFIG
====================================
*/

// ScannerConfig defines a public type used by gatekit APIs.
//
// ScannerConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ScannerConfig struct {
	MaxBodyBytes        int64
	AllowedContentTypes []string
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig defines a public type used by gatekit APIs.
//
// GateConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// CheckTimeout bounds every collaborator call made during the pipeline. A
// timeout on a critical check denies the request; audit delivery is exempt.
type GateConfig struct {
	CheckTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by gatekit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by gatekit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Callers adjust what
// they need and hand the result to [Builder.WithConfig]; the grant
// signing key has no default and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Enabled:         true,
			Issuer:          "gatekit",
			Skew:            1,
			BackupCodeCount: 8,
		},
		Lockout: LockoutConfig{
			Enabled:           true,
			MaxFailedAttempts: 5,
			LockDuration:      15 * time.Minute,
			RedisPrefix:       "glk",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      time.Minute,
			MaxRequests: 60,
			RedisPrefix: "grl",
		},
		Session: SessionConfig{
			MaxConcurrent: 5,
			TTL:           24 * time.Hour,
			IdleTimeout:   30 * time.Minute,
			RedisPrefix:   "gs",
		},
		Grant: GrantConfig{
			TTL: 30 * time.Minute,
		},
		Scanner: ScannerConfig{
			MaxBodyBytes: 1 << 20,
		},
		Gate: GateConfig{
			CheckTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Grant.SigningKey != nil {
		out.Grant.SigningKey = append([]byte(nil), cfg.Grant.SigningKey...)
	}
	if cfg.Scanner.AllowedContentTypes != nil {
		out.Scanner.AllowedContentTypes = append([]string(nil), cfg.Scanner.AllowedContentTypes...)
	}
	return out
}

// Validate checks internal consistency. Build refuses a config that fails.
func (c Config) Validate() error {
	if c.TOTP.Enabled {
		if c.TOTP.Issuer == "" {
			return errors.New("totp issuer required")
		}
		if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
			return errors.New("totp skew must be between 0 and 4")
		}
		if c.TOTP.BackupCodeCount < 0 || c.TOTP.BackupCodeCount > 64 {
			return errors.New("backup code count must be between 0 and 64")
		}
	}
	if c.Lockout.Enabled {
		if c.Lockout.MaxFailedAttempts <= 0 {
			return errors.New("lockout threshold must be positive")
		}
		if c.Lockout.LockDuration <= 0 {
			return errors.New("lockout duration must be positive")
		}
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
			return errors.New("rate limit window and budget must be positive")
		}
	}
	if c.Session.MaxConcurrent <= 0 {
		return errors.New("session cap must be positive")
	}
	if len(c.Grant.SigningKey) < 32 {
		return errors.New("grant signing key must be at least 32 bytes")
	}
	if c.Grant.TTL <= 0 {
		return errors.New("grant ttl must be positive")
	}
	if c.Gate.CheckTimeout <= 0 {
		return errors.New("gate check timeout must be positive")
	}
	return nil
}
