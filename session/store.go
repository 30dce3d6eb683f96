package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when the token has no live record.
var ErrSessionNotFound = errors.New("session not found")

// ErrRedisUnavailable is returned when the session backend is unreachable.
var ErrRedisUnavailable = errors.New("session backend unavailable")

// Config holds registry tuning parameters.
type Config struct {
	Prefix    string        // redis key namespace, default "gs"
	MaxActive int           // concurrent-session cap per account, default 5
	TTL       time.Duration // absolute session lifetime, default 24h
}

// Store is the Redis-backed session registry.
type Store struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

// NewStore creates a registry on the given client.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Store{redis: redisClient, cfg: cfg, now: time.Now}
}

func (s *Store) sessionKey(token string) string {
	return s.cfg.Prefix + ":" + token
}

func (s *Store) accountKey(accountID string) string {
	return s.cfg.Prefix + "a:" + accountID
}

// enforceCapScript registers the new member (when one is given) and trims
// the account set down to the cap in the same atomic step, so concurrent
// creates at the cap cannot both skip eviction. Victims are the
// lowest-scored (least-recently-active) members; their tokens come back
// to the caller for record deactivation.
const enforceCapScript = `
if ARGV[1] ~= "" then
  redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
  redis.call("EXPIRE", KEYS[1], ARGV[4])
end
local max = tonumber(ARGV[3])
local count = redis.call("ZCARD", KEYS[1])
if count <= max then
  return {}
end
local victims = redis.call("ZRANGE", KEYS[1], 0, count - max - 1)
if #victims > 0 then
  redis.call("ZREM", KEYS[1], unpack(victims))
end
return victims
`

var enforceCapLua = redis.NewScript(enforceCapScript)

// Create registers a new session with an unguessable token and enforces the
// concurrency cap, evicting the least-recently-active sessions beyond it.
func (s *Store) Create(ctx context.Context, accountID, deviceInfo, ip string) (*Session, error) {
	now := s.now().Unix()
	record := &Session{
		Token:          uuid.NewString(),
		AccountID:      accountID,
		DeviceInfo:     deviceInfo,
		IPAddress:      ip,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now + int64(s.cfg.TTL/time.Second),
		Active:         true,
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	if _, err := s.trim(ctx, accountID, record.Token, now, s.cfg.MaxActive); err != nil {
		return nil, err
	}

	return record, nil
}

// Get loads a live session by token. Expired or unknown tokens return
// [ErrSessionNotFound].
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	record, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}

	if record.ExpiresAt <= s.now().Unix() {
		_ = s.redis.Del(ctx, s.sessionKey(token)).Err()
		_ = s.redis.ZRem(ctx, s.accountKey(record.AccountID), token).Err()
		return nil, ErrSessionNotFound
	}

	return record, nil
}

// Touch refreshes the session's last-activity stamp. Idle-timeout policy is
// driven by whoever reads the stamp, not enforced here.
func (s *Store) Touch(ctx context.Context, token string) error {
	record, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if !record.Active {
		return ErrSessionNotFound
	}

	now := s.now().Unix()
	record.LastActivityAt = now
	if err := s.save(ctx, record); err != nil {
		return err
	}

	member := redis.Z{Score: float64(now), Member: token}
	if err := s.redis.ZAdd(ctx, s.accountKey(record.AccountID), member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CountActive reports the number of live active sessions for an account.
func (s *Store) CountActive(ctx context.Context, accountID string) (int, error) {
	live, err := s.loadActive(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return len(live), nil
}

// EnforceCap deactivates active sessions beyond max, oldest-by-activity
// first, and reports how many it evicted. Selection and removal happen
// inside one Redis script, so an interleaved Create cannot leave the
// account over the cap.
func (s *Store) EnforceCap(ctx context.Context, accountID string, max int) (int, error) {
	if max <= 0 {
		max = s.cfg.MaxActive
	}
	return s.trim(ctx, accountID, "", 0, max)
}

// trim runs the cap script and deactivates the records behind the
// evicted tokens. Stale set members count against the cap until pruned,
// which errs toward fewer live sessions, never more.
func (s *Store) trim(ctx context.Context, accountID, addToken string, score int64, max int) (int, error) {
	raw, err := enforceCapLua.Run(ctx, s.redis,
		[]string{s.accountKey(accountID)},
		addToken,
		score,
		max,
		int64(s.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	victims, ok := raw.([]interface{})
	if !ok {
		return 0, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, raw)
	}

	evicted := 0
	for _, v := range victims {
		token, _ := v.(string)
		record, err := s.load(ctx, token)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrCorruptRecord) {
				continue
			}
			return evicted, err
		}
		record.Active = false
		record.TerminatedAt = s.now().Unix()
		if err := s.save(ctx, record); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// Revoke deactivates one session. Revoking an unknown token is a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	record, err := s.load(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return s.deactivate(ctx, record)
}

// RevokeAll deactivates every active session for an account.
func (s *Store) RevokeAll(ctx context.Context, accountID string) error {
	live, err := s.loadActive(ctx, accountID)
	if err != nil {
		return err
	}
	for _, record := range live {
		if err := s.deactivate(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) save(ctx context.Context, record *Session) error {
	blob, err := Encode(record)
	if err != nil {
		return err
	}

	ttl := time.Duration(record.ExpiresAt-s.now().Unix()) * time.Second
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.redis.Set(ctx, s.sessionKey(record.Token), blob, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, token string) (*Session, error) {
	blob, err := s.redis.Get(ctx, s.sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(blob)
}

// loadActive returns live active sessions ordered most-recent first, pruning
// set entries whose blobs have already expired.
func (s *Store) loadActive(ctx context.Context, accountID string) ([]*Session, error) {
	tokens, err := s.redis.ZRevRange(ctx, s.accountKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now().Unix()
	live := make([]*Session, 0, len(tokens))
	for _, token := range tokens {
		record, err := s.load(ctx, token)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrCorruptRecord) {
				_ = s.redis.ZRem(ctx, s.accountKey(accountID), token).Err()
				continue
			}
			return nil, err
		}
		if !record.Active || record.ExpiresAt <= now {
			_ = s.redis.ZRem(ctx, s.accountKey(accountID), token).Err()
			continue
		}
		live = append(live, record)
	}

	return live, nil
}

func (s *Store) deactivate(ctx context.Context, record *Session) error {
	record.Active = false
	record.TerminatedAt = s.now().Unix()

	if err := s.save(ctx, record); err != nil {
		return err
	}
	if err := s.redis.ZRem(ctx, s.accountKey(record.AccountID), record.Token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
