package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "identity:subject:"

// Cache stores verified subjects. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Cache backed by client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

const defaultUpstreamTimeout = 10 * time.Second

// CacheConfig configures a CachingVerifier. Timeout bounds one shared upstream
// verification; zero means the package default. Salt keys the digest and may
// be empty; at most 64 bytes are used.
type CacheConfig struct {
	TTL     time.Duration
	Timeout time.Duration
	Salt    string
}

// CachingVerifier memoizes successful verifications for a short TTL and
// collapses concurrent verifications of the same token into one upstream call.
// Raw tokens never reach the cache; keys are keyed BLAKE2b digests.
type CachingVerifier struct {
	next    Verifier
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	salt    []byte
	group   singleflight.Group
	logger  *zap.Logger
}

// NewCachingVerifier wraps next.
func NewCachingVerifier(next Verifier, cache Cache, cfg CacheConfig, logger *zap.Logger) *CachingVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := []byte(cfg.Salt)
	if len(s) > blake2b.Size {
		s = s[:blake2b.Size]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &CachingVerifier{next: next, cache: cache, ttl: cfg.TTL, timeout: timeout, salt: s, logger: logger}
}

// Verify returns a cached subject for token or verifies it upstream.
// Cache failures are logged and bypassed. The shared upstream call does not
// inherit the cancellation of whichever caller started it; each caller stops
// waiting when its own ctx is done.
func (v *CachingVerifier) Verify(ctx context.Context, token string) (*Subject, error) {
	key, err := v.key(token)
	if err != nil {
		return nil, err
	}
	if raw, err := v.cache.Get(ctx, key); err != nil {
		v.logger.Warn("identity cache read failed", zap.Error(err))
	} else if raw != nil {
		var sub Subject
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
	}

	ch := v.group.DoChan(key, func() (interface{}, error) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		sub, err := v.next.Verify(uctx, token)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(sub); err == nil {
			if err := v.cache.Set(uctx, key, raw, v.ttl); err != nil {
				v.logger.Warn("identity cache write failed", zap.Error(err))
			}
		}
		return sub, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sub := *res.Val.(*Subject)
		return &sub, nil
	}
}

func (v *CachingVerifier) key(token string) (string, error) {
	h, err := blake2b.New256(v.salt)
	if err != nil {
		return "", fmt.Errorf("cache key hash: %w", err)
	}
	h.Write([]byte(token))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
