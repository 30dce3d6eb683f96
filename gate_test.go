package gatekit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/gatekit/otp"
)

type fakeIdentityProvider struct {
	mu       sync.Mutex
	sessions map[string]*Identity
	calls    int
	fail     bool
}

func newFakeIdentityProvider() *fakeIdentityProvider {
	return &fakeIdentityProvider{sessions: map[string]*Identity{}}
}

func (p *fakeIdentityProvider) CurrentIdentity(_ context.Context, req *Request) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("identity backend down")
	}
	return p.sessions[req.SessionToken], nil
}

type fakeCredentialStore struct {
	mu          sync.Mutex
	credentials map[string]*TOTPCredential
	fail        bool
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{credentials: map[string]*TOTPCredential{}}
}

func (s *fakeCredentialStore) Get(_ context.Context, accountID string) (*TOTPCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store down")
	}
	credential, ok := s.credentials[accountID]
	if !ok {
		return nil, nil
	}
	clone := *credential
	clone.BackupCodes = append([]string(nil), credential.BackupCodes...)
	return &clone, nil
}

func (s *fakeCredentialStore) Upsert(_ context.Context, credential *TOTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	clone := *credential
	clone.BackupCodes = append([]string(nil), credential.BackupCodes...)
	s.credentials[credential.AccountID] = &clone
	return nil
}

func (s *fakeCredentialStore) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	delete(s.credentials, accountID)
	return nil
}

type fakeEntitlements struct {
	active map[string]bool
	fail   bool
}

func (e *fakeEntitlements) HasActiveSubscription(_ context.Context, accountID string) (bool, error) {
	if e.fail {
		return false, errors.New("billing down")
	}
	return e.active[accountID], nil
}

type fakeBlocklist struct {
	blocked map[string]bool
	fail    bool
}

func (b *fakeBlocklist) IsBlocked(_ context.Context, ip string) (BlockStatus, error) {
	if b.fail {
		return BlockStatus{}, errors.New("blocklist down")
	}
	return BlockStatus{Blocked: b.blocked[ip]}, nil
}

type gateFixture struct {
	gate        *Gate
	redis       *miniredis.Miniredis
	identity    *fakeIdentityProvider
	credentials *fakeCredentialStore
	entitle     *fakeEntitlements
	blocklist   *fakeBlocklist
}

func gateTestConfig() Config {
	cfg := defaultConfig()
	cfg.Grant.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newGateFixture(t *testing.T, cfg Config) *gateFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fx := &gateFixture{
		redis:       mr,
		identity:    newFakeIdentityProvider(),
		credentials: newFakeCredentialStore(),
		entitle:     &fakeEntitlements{active: map[string]bool{}},
		blocklist:   &fakeBlocklist{blocked: map[string]bool{}},
	}

	gate, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityProvider(fx.identity).
		WithCredentialStore(fx.credentials).
		WithEntitlementProvider(fx.entitle).
		WithBlocklist(fx.blocklist).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	fx.gate = gate
	return fx
}

func authedRequest(token string) *Request {
	return &Request{
		Method:       "GET",
		Path:         "/api/resource",
		IP:           "10.0.0.1",
		SessionToken: token,
	}
}

func TestAuthorizeAllowsPlainRequest(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())

	decision := fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "public"})
	if !decision.Allow {
		t.Fatalf("expected allow, got %d %v", decision.Status, decision.Body)
	}
	if decision.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", decision.Status)
	}
}

func TestAuthorizeDeniesBlockedIP(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.blocklist.blocked["10.0.0.1"] = true

	decision := fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "public"})
	if decision.Allow {
		t.Fatal("expected deny for blocked ip")
	}
	if decision.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", decision.Status)
	}
	if decision.Body.Error != "ip_blocked" {
		t.Fatalf("unexpected deny body: %+v", decision.Body)
	}
}

func TestAuthorizeRateLimitsPerEndpoint(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	policy := RoutePolicy{Endpoint: "login", RateLimitWindow: time.Minute, RateLimitMax: 3}

	for i := 0; i < 3; i++ {
		decision := fx.gate.Authorize(context.Background(), authedRequest(""), policy)
		if !decision.Allow {
			t.Fatalf("request %d unexpectedly denied: %+v", i+1, decision.Body)
		}
	}

	decision := fx.gate.Authorize(context.Background(), authedRequest(""), policy)
	if decision.Allow {
		t.Fatal("expected rate limit deny on 4th request")
	}
	if decision.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", decision.Status)
	}
	if decision.Body.RetryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", decision.Body.RetryAfter)
	}

	// A different endpoint keeps its own budget.
	other := fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "profile", RateLimitWindow: time.Minute, RateLimitMax: 3})
	if !other.Allow {
		t.Fatalf("expected independent budget for other endpoint: %+v", other.Body)
	}
}

func TestAuthorizeRateLimitRunsBeforeAuthentication(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	policy := RoutePolicy{Endpoint: "login", RequireAuth: true, RateLimitWindow: time.Minute, RateLimitMax: 1}

	fx.gate.Authorize(context.Background(), authedRequest(""), policy)
	callsAfterFirst := fx.identity.calls

	decision := fx.gate.Authorize(context.Background(), authedRequest(""), policy)
	if decision.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", decision.Status)
	}
	if fx.identity.calls != callsAfterFirst {
		t.Fatal("identity provider must not be consulted for rate-limited requests")
	}
}

func TestAuthorizeRequiresAuthentication(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())

	decision := fx.gate.Authorize(context.Background(), authedRequest("unknown"), RoutePolicy{Endpoint: "account", RequireAuth: true})
	if decision.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", decision.Status)
	}
	if decision.Body.Error != "authentication_required" {
		t.Fatalf("unexpected deny body: %+v", decision.Body)
	}

	fx.identity.sessions["s1"] = &Identity{ID: "u1", Email: "u1@example.com"}
	decision = fx.gate.Authorize(context.Background(), authedRequest("s1"), RoutePolicy{Endpoint: "account", RequireAuth: true})
	if !decision.Allow {
		t.Fatalf("expected allow for authenticated request: %+v", decision.Body)
	}
	if decision.Identity == nil || decision.Identity.ID != "u1" {
		t.Fatal("expected resolved identity on allow")
	}
}

func TestAuthorizeDeniesLockedAccount(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}

	for i := 0; i < 5; i++ {
		if _, err := fx.gate.RecordFailedAttempt(context.Background(), "u1", "10.0.0.1"); err != nil {
			t.Fatalf("RecordFailedAttempt: %v", err)
		}
	}

	decision := fx.gate.Authorize(context.Background(), authedRequest("s1"), RoutePolicy{Endpoint: "account", RequireAuth: true})
	if decision.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for locked account, got %d", decision.Status)
	}
	if decision.Body.Error != "account_locked" {
		t.Fatalf("unexpected deny body: %+v", decision.Body)
	}
	if decision.Body.RetryAfter <= 0 {
		t.Fatal("expected remaining lock time in deny body")
	}
}

func TestAuthorizeTwoFactorRequiresGrant(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "sensitive", RequireAuth: true, RequireTwoFactor: true}

	grant := enrollAndVerify(t, fx, "u1", "s1")

	// Enrolled, but no grant and no code.
	decision := fx.gate.Authorize(context.Background(), authedRequest("s1"), policy)
	if decision.Status != http.StatusForbidden || decision.Body.Error != "two_factor_required" {
		t.Fatalf("expected two_factor_required, got %d %+v", decision.Status, decision.Body)
	}

	req := authedRequest("s1")
	req.TwoFactorGrant = grant
	decision = fx.gate.Authorize(context.Background(), req, policy)
	if !decision.Allow {
		t.Fatalf("expected allow with valid grant: %d %+v", decision.Status, decision.Body)
	}

	// The grant is bound to the session that earned it.
	fx.identity.sessions["s2"] = &Identity{ID: "u1"}
	req = authedRequest("s2")
	req.TwoFactorGrant = grant
	decision = fx.gate.Authorize(context.Background(), req, policy)
	if decision.Status != http.StatusForbidden {
		t.Fatalf("expected grant rejection for foreign session, got %d", decision.Status)
	}
}

func TestAuthorizeSkipsTwoFactorForUnenrolledAccount(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "sensitive", RequireAuth: true, RequireTwoFactor: true}

	// No credential at all.
	decision := fx.gate.Authorize(context.Background(), authedRequest("s1"), policy)
	if !decision.Allow {
		t.Fatalf("expected allow for unenrolled account: %d %+v", decision.Status, decision.Body)
	}

	// Pending enrollment that was never confirmed does not enforce either.
	if _, err := fx.gate.SetupTOTP(context.Background(), "u1"); err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	decision = fx.gate.Authorize(context.Background(), authedRequest("s1"), policy)
	if !decision.Allow {
		t.Fatalf("expected allow for unconfirmed credential: %d %+v", decision.Status, decision.Body)
	}
}

func TestAuthorizeAcceptsLiveCodeInPlaceOfGrant(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "sensitive", RequireAuth: true, RequireTwoFactor: true}

	enrollAndVerify(t, fx, "u1", "s1")
	secret := fx.credentials.credentials["u1"].Secret

	req := authedRequest("s1")
	req.TwoFactorCode = otp.GenerateCode(secret, time.Now())
	decision := fx.gate.Authorize(context.Background(), req, policy)
	if !decision.Allow {
		t.Fatalf("expected allow with live code: %d %+v", decision.Status, decision.Body)
	}

	req = authedRequest("s1")
	req.TwoFactorCode = "000000"
	decision = fx.gate.Authorize(context.Background(), req, policy)
	if decision.Status != http.StatusForbidden {
		t.Fatalf("expected deny for wrong code, got %d", decision.Status)
	}
}

func TestAuthorizeAcceptsBackupCodeInPlaceOfGrant(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "sensitive", RequireAuth: true, RequireTwoFactor: true}

	enrollAndVerify(t, fx, "u1", "s1")
	codes := append([]string(nil), fx.credentials.credentials["u1"].BackupCodes...)

	req := authedRequest("s1")
	req.TwoFactorCode = codes[0]
	decision := fx.gate.Authorize(context.Background(), req, policy)
	if !decision.Allow {
		t.Fatalf("expected allow with backup code: %d %+v", decision.Status, decision.Body)
	}

	remaining := fx.credentials.credentials["u1"].BackupCodes
	if len(remaining) != len(codes)-1 {
		t.Fatalf("backup code was not consumed: %d left, want %d", len(remaining), len(codes)-1)
	}

	// The consumed code is single-use at the gate too.
	req = authedRequest("s1")
	req.TwoFactorCode = codes[0]
	decision = fx.gate.Authorize(context.Background(), req, policy)
	if decision.Status != http.StatusForbidden {
		t.Fatalf("expected deny for reused backup code, got %d", decision.Status)
	}
}

func TestAuthorizeGrantInvalidatedByReEnrollment(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "sensitive", RequireAuth: true, RequireTwoFactor: true}

	grant := enrollAndVerify(t, fx, "u1", "s1")

	if err := fx.gate.DisableTOTP(context.Background(), "u1"); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}

	// Force a distinct verification stamp for the second enrollment.
	fx.gate.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	enrollAndVerify(t, fx, "u1", "s1")
	fx.gate.now = time.Now

	req := authedRequest("s1")
	req.TwoFactorGrant = grant
	decision := fx.gate.Authorize(context.Background(), req, policy)
	if decision.Status != http.StatusForbidden {
		t.Fatalf("expected old grant to be rejected after re-enrollment, got %d", decision.Status)
	}
}

func TestAuthorizeRequiresSubscription(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.identity.sessions["s1"] = &Identity{ID: "u1"}
	policy := RoutePolicy{Endpoint: "premium", RequireAuth: true, RequireSubscription: true}

	decision := fx.gate.Authorize(context.Background(), authedRequest("s1"), policy)
	if decision.Status != http.StatusForbidden || decision.Body.Error != "subscription_required" {
		t.Fatalf("expected subscription_required, got %d %+v", decision.Status, decision.Body)
	}

	fx.entitle.active["u1"] = true
	decision = fx.gate.Authorize(context.Background(), authedRequest("s1"), policy)
	if !decision.Allow {
		t.Fatalf("expected allow with active subscription: %+v", decision.Body)
	}
}

func TestAuthorizeRejectsSuspiciousInput(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())

	req := authedRequest("")
	req.Method = "POST"
	req.Headers = http.Header{"Content-Type": []string{"application/json"}}
	req.Body = []byte(`{"name":"<script>alert(1)</script>"}`)

	decision := fx.gate.Authorize(context.Background(), req, RoutePolicy{Endpoint: "public"})
	if decision.Status != http.StatusBadRequest || decision.Body.Error != "invalid_input" {
		t.Fatalf("expected invalid_input, got %d %+v", decision.Status, decision.Body)
	}
	if len(decision.Body.Details) == 0 {
		t.Fatal("expected violation details in deny body")
	}
}

func TestAuthorizeFailsClosedOnBackendError(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())
	fx.blocklist.fail = true

	decision := fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "public"})
	if decision.Allow {
		t.Fatal("expected deny when blocklist backend fails")
	}
	if decision.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", decision.Status)
	}
	if decision.Body.Error != "service_unavailable" {
		t.Fatalf("deny body must not leak the cause: %+v", decision.Body)
	}

	fx.blocklist.fail = false
	fx.identity.fail = true
	decision = fx.gate.Authorize(context.Background(), authedRequest("s1"), RoutePolicy{Endpoint: "account", RequireAuth: true})
	if decision.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on identity backend failure, got %d", decision.Status)
	}
}

func TestAuthorizeCountsDecisions(t *testing.T) {
	fx := newGateFixture(t, gateTestConfig())

	fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "public"})
	fx.blocklist.blocked["10.0.0.1"] = true
	fx.gate.Authorize(context.Background(), authedRequest(""), RoutePolicy{Endpoint: "public"})

	snapshot := fx.gate.Metrics().Snapshot()
	if snapshot.Counters[MetricGateAllowed] != 1 {
		t.Fatalf("expected 1 allowed, got %d", snapshot.Counters[MetricGateAllowed])
	}
	if snapshot.Counters[MetricGateBlockedIP] != 1 {
		t.Fatalf("expected 1 blocked, got %d", snapshot.Counters[MetricGateBlockedIP])
	}
}

func TestRecordFailedAttemptEmitsAuditEvent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewChannelSink(8)
	gate, err := New().
		WithConfig(gateTestConfig()).
		WithRedis(client).
		WithIdentityProvider(newFakeIdentityProvider()).
		WithCredentialStore(newFakeCredentialStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer gate.Close()

	status, err := gate.RecordFailedAttempt(context.Background(), "u1", "10.0.0.1")
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if status.Locked {
		t.Fatal("one failure must not lock the account")
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "lockout.failure" {
			t.Fatalf("unexpected event type %q", event.EventType)
		}
		if event.AccountID != "u1" || event.Success {
			t.Fatalf("unexpected event payload: %+v", event)
		}
		if event.Details["failed_attempts"] != "1" {
			t.Fatalf("expected failed_attempts=1, got %q", event.Details["failed_attempts"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event for a below-threshold failure")
	}
}

func TestBuilderValidation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if _, err := New().WithConfig(gateTestConfig()).WithRedis(client).Build(); err == nil {
		t.Fatal("expected error without identity provider")
	}

	if _, err := New().WithConfig(gateTestConfig()).WithIdentityProvider(newFakeIdentityProvider()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}

	cfg := gateTestConfig()
	cfg.Grant.SigningKey = []byte("short")
	if _, err := New().WithConfig(cfg).WithRedis(client).WithIdentityProvider(newFakeIdentityProvider()).WithCredentialStore(newFakeCredentialStore()).Build(); err == nil {
		t.Fatal("expected error for short signing key")
	}

	b := New().WithConfig(gateTestConfig()).WithRedis(client).WithIdentityProvider(newFakeIdentityProvider()).WithCredentialStore(newFakeCredentialStore())
	gate, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer gate.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error reusing builder")
	}
}
