package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	gatekit "github.com/MrEthical07/gatekit"
)

const defaultCredentialPrefix = "gc"

// RedisCredentialStore persists TOTP credentials as JSON blobs keyed by
// account. Credentials have no TTL; they live until disabled.
type RedisCredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCredentialStore describes the newrediscredentialstore operation and its observable behavior.
//
// NewRedisCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisCredentialStore(client redis.UniversalClient, prefix string) *RedisCredentialStore {
	if prefix == "" {
		prefix = defaultCredentialPrefix
	}
	return &RedisCredentialStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisCredentialStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCredentialStore) Get(ctx context.Context, accountID string) (*gatekit.TOTPCredential, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential get: %w", err)
	}

	var credential gatekit.TOTPCredential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("credential decode: %w", err)
	}
	return &credential, nil
}

// Upsert describes the upsert operation and its observable behavior.
//
// Upsert may return an error when input validation, dependency calls, or security checks fail.
// Upsert does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCredentialStore) Upsert(ctx context.Context, credential *gatekit.TOTPCredential) error {
	if credential == nil || credential.AccountID == "" {
		return errors.New("credential account id required")
	}

	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("credential encode: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(credential.AccountID), data, 0).Err(); err != nil {
		return fmt.Errorf("credential set: %w", err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisCredentialStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("credential delete: %w", err)
	}
	return nil
}
