// README: Verification store backed by Redis; SETNX/INCR/TTL carry the atomicity.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func codeKey(codeType, identifier string) string {
	return fmt.Sprintf("%s:%s", codeType, identifier)
}

func attemptsKey(codeType, identifier string) string {
	return fmt.Sprintf("%s:attempts:%s", codeType, identifier)
}

func rateKey(codeType, identifier string) string {
	return fmt.Sprintf("%s:rate:%s", codeType, identifier)
}

// SetCodeNX stores the code only if no code exists for the key.
func (s *Store) SetCodeNX(ctx context.Context, codeType, identifier, code string, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, codeKey(codeType, identifier), code, ttl).Result()
}

// GetCodeWithTTL returns the stored code and its remaining TTL; found is
// false when the key is absent or expired.
func (s *Store) GetCodeWithTTL(ctx context.Context, codeType, identifier string) (code string, ttl time.Duration, found bool, err error) {
	pipe := s.redis.Pipeline()
	getCmd := pipe.Get(ctx, codeKey(codeType, identifier))
	ttlCmd := pipe.TTL(ctx, codeKey(codeType, identifier))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", 0, false, err
	}
	code, err = getCmd.Result()
	if err == redis.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return code, ttlCmd.Val(), true, nil
}

// InitAttempts resets the attempts counter to zero with the code's TTL.
func (s *Store) InitAttempts(ctx context.Context, codeType, identifier string, ttl time.Duration) error {
	return s.redis.Set(ctx, attemptsKey(codeType, identifier), 0, ttl).Err()
}

// GetCodeAndAttempts reads the stored code and the attempts counter together.
func (s *Store) GetCodeAndAttempts(ctx context.Context, codeType, identifier string) (code string, attempts int64, found bool, err error) {
	pipe := s.redis.Pipeline()
	codeCmd := pipe.Get(ctx, codeKey(codeType, identifier))
	attCmd := pipe.Get(ctx, attemptsKey(codeType, identifier))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", 0, false, err
	}
	code, err = codeCmd.Result()
	if err == redis.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	attempts, err = attCmd.Int64()
	if err != nil && err != redis.Nil {
		return "", 0, false, err
	}
	return code, attempts, true, nil
}

// DeleteCode removes the code and its attempts counter atomically.
func (s *Store) DeleteCode(ctx context.Context, codeType, identifier string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, codeKey(codeType, identifier))
	pipe.Del(ctx, attemptsKey(codeType, identifier))
	_, err := pipe.Exec(ctx)
	return err
}

// IncrAttempts bumps the attempts counter. When the counter's TTL was lost
// (the key raced with expiry and was recreated by INCR) it is re-derived
// from the code key's remaining TTL.
func (s *Store) IncrAttempts(ctx context.Context, codeType, identifier string) (int64, error) {
	n, err := s.redis.Incr(ctx, attemptsKey(codeType, identifier)).Result()
	if err != nil {
		return 0, err
	}
	ttl, err := s.redis.TTL(ctx, attemptsKey(codeType, identifier)).Result()
	if err != nil {
		return n, err
	}
	if ttl < 0 {
		codeTTL, err := s.redis.TTL(ctx, codeKey(codeType, identifier)).Result()
		if err == nil && codeTTL > 0 {
			_ = s.redis.Expire(ctx, attemptsKey(codeType, identifier), codeTTL).Err()
		}
	}
	return n, nil
}

// AllowIssue enforces the per-identifier issuance window: at most limit
// requests per window, counted with INCR on a TTL'd key.
func (s *Store) AllowIssue(ctx context.Context, codeType, identifier string, limit int64, window time.Duration) (bool, error) {
	key := rateKey(codeType, identifier)
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= limit, nil
}

// SetToken stores a reset token under its own namespace by presence.
func (s *Store) SetToken(ctx context.Context, codeType, identifier, token string, ttl time.Duration) error {
	return s.redis.Set(ctx, tokenKey(codeType, identifier, token), "1", ttl).Err()
}

// CheckToken reports whether the token exists.
func (s *Store) CheckToken(ctx context.Context, codeType, identifier, token string) (bool, error) {
	_, err := s.redis.Get(ctx, tokenKey(codeType, identifier, token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteToken removes a consumed token.
func (s *Store) DeleteToken(ctx context.Context, codeType, identifier, token string) error {
	return s.redis.Del(ctx, tokenKey(codeType, identifier, token)).Err()
}

func tokenKey(codeType, identifier, token string) string {
	return fmt.Sprintf("%s:%s:%s", codeType, identifier, token)
}
