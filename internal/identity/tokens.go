package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studyhub/profiles/internal/crypto"
)

type TokenKind string

const (
	KindOAuthState TokenKind = "oauth_state"
	KindSignup     TokenKind = "signup"
	KindRecovery   TokenKind = "recovery"
)

// TokenRecord is what a single-use token resolves to.
type TokenRecord struct {
	AccountID    string    `json:"account_id,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore keeps short-lived single-use tokens. Consume removes the token
// whether or not it is still valid.
type TokenStore interface {
	Put(ctx context.Context, kind TokenKind, token string, record TokenRecord, ttl time.Duration) error
	Consume(ctx context.Context, kind TokenKind, token string) (TokenRecord, bool, error)
}

type RedisTokenStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "profiles", now: time.Now}
}

func (s *RedisTokenStore) Put(ctx context.Context, kind TokenKind, token string, record TokenRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(kind, token), payload, ttl).Err()
}

func (s *RedisTokenStore) Consume(ctx context.Context, kind TokenKind, token string) (TokenRecord, bool, error) {
	raw, err := s.client.GetDel(ctx, s.key(kind, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenRecord{}, false, nil
		}
		return TokenRecord{}, false, err
	}
	var record TokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return TokenRecord{}, false, err
	}
	// Redis expiry is coarse; the stored deadline is authoritative.
	if !s.now().Before(record.ExpiresAt) {
		return TokenRecord{}, false, nil
	}
	return record, true, nil
}

func (s *RedisTokenStore) key(kind TokenKind, token string) string {
	return s.prefix + ":" + string(kind) + ":" + crypto.HashToken(token)
}

// MemoryTokenStore is used when no redis is configured. Tokens do not survive
// a restart and are not shared between replicas.
type MemoryTokenStore struct {
	mu      sync.Mutex
	records map[string]TokenRecord
	now     func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: map[string]TokenRecord{}, now: time.Now}
}

func (s *MemoryTokenStore) Put(_ context.Context, kind TokenKind, token string, record TokenRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, existing := range s.records {
		if !now.Before(existing.ExpiresAt) {
			delete(s.records, key)
		}
	}
	s.records[string(kind)+":"+crypto.HashToken(token)] = record
	return nil
}

func (s *MemoryTokenStore) Consume(_ context.Context, kind TokenKind, token string) (TokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + ":" + crypto.HashToken(token)
	record, ok := s.records[key]
	if !ok {
		return TokenRecord{}, false, nil
	}
	delete(s.records, key)
	if !s.now().Before(record.ExpiresAt) {
		return TokenRecord{}, false, nil
	}
	return record, true, nil
}
