package gatekit

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/gatekit/internal/lockout"
	"github.com/MrEthical07/gatekit/internal/rate"
	"github.com/MrEthical07/gatekit/internal/scan"
	"github.com/MrEthical07/gatekit/session"
)

// Builder defines a public type used by gatekit APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity     IdentityProvider
	credentials  CredentialStore
	entitlements EntitlementProvider
	blocklist    Blocklist
	auditSink    AuditSink
	limiter      rate.Limiter

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
//
// WithIdentityProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
//
// WithCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialStore(s CredentialStore) *Builder {
	b.credentials = s
	return b
}

// WithEntitlementProvider describes the withentitlementprovider operation and its observable behavior.
//
// WithEntitlementProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEntitlementProvider(p EntitlementProvider) *Builder {
	b.entitlements = p
	return b
}

// WithBlocklist describes the withblocklist operation and its observable behavior.
//
// WithBlocklist does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBlocklist(bl Blocklist) *Builder {
	b.blocklist = bl
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRateLimiter overrides the limiter the config would select. Intended
// for custom backends; most callers should rely on SharedCounters instead.
func (b *Builder) WithRateLimiter(l rate.Limiter) *Builder {
	b.limiter = l
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		if cfg.Lockout.Enabled {
			return nil, errors.New("lockout tracking requires redis client")
		}
		if cfg.RateLimit.Enabled && cfg.RateLimit.SharedCounters {
			return nil, errors.New("shared rate counters require redis client")
		}
		return nil, errors.New("redis client required")
	}

	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if cfg.TOTP.Enabled && b.credentials == nil {
		return nil, errors.New("credential store required when totp is enabled")
	}

	gate := &Gate{
		config:       cfg,
		identity:     b.identity,
		credentials:  b.credentials,
		entitlements: b.entitlements,
		blocklist:    b.blocklist,
		now:          time.Now,
	}

	// -------- RATE LIMITER --------
	switch {
	case b.limiter != nil:
		gate.limiter = b.limiter
	case cfg.RateLimit.SharedCounters:
		gate.limiter = rate.NewRedisLimiter(b.redis, cfg.RateLimit.RedisPrefix)
	default:
		gate.limiter = rate.NewMemoryLimiter()
	}

	// -------- LOCKOUT TRACKER --------
	if cfg.Lockout.Enabled {
		gate.lockouts = lockout.New(b.redis, lockout.Config{
			Threshold:    cfg.Lockout.MaxFailedAttempts,
			LockDuration: cfg.Lockout.LockDuration,
			Prefix:       cfg.Lockout.RedisPrefix,
		})
	}

	// -------- SESSION REGISTRY --------
	gate.sessions = session.NewStore(b.redis, session.Config{
		Prefix:    cfg.Session.RedisPrefix,
		MaxActive: cfg.Session.MaxConcurrent,
		TTL:       cfg.Session.TTL,
	})

	gate.scanner = scan.New(scan.Config{
		MaxBodyBytes:        cfg.Scanner.MaxBodyBytes,
		AllowedContentTypes: cfg.Scanner.AllowedContentTypes,
	})
	gate.grants = newGrantIssuer(cfg.Grant)
	gate.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	gate.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return gate, nil
}
