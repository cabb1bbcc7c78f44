package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("redis down")
	}
	return m.data[key], nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("redis down")
	}
	m.data[key] = value
	return nil
}

type countingVerifier struct {
	calls atomic.Int32
	delay time.Duration
	sub   *Subject
	err   error
}

func (c *countingVerifier) Verify(context.Context, string) (*Subject, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	return c.sub, nil
}

func TestCachingVerifierServesFromCache(t *testing.T) {
	next := &countingVerifier{sub: &Subject{ID: uuid.New(), Email: "a@b.example"}}
	cache := &mapCache{data: map[string][]byte{}}
	v := NewCachingVerifier(next, cache, CacheConfig{TTL: time.Minute, Salt: "salt"}, nil)

	first, err := v.Verify(context.Background(), "token-1")
	require.NoError(t, err)
	second, err := v.Verify(context.Background(), "token-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, next.calls.Load())
	for k := range cache.data {
		assert.True(t, strings.HasPrefix(k, cacheKeyPrefix))
		assert.NotContains(t, k, "token-1")
	}
}

func TestCachingVerifierDoesNotCacheFailures(t *testing.T) {
	next := &countingVerifier{err: &RejectedError{Status: 401, Message: "bad"}}
	v := NewCachingVerifier(next, &mapCache{data: map[string][]byte{}}, CacheConfig{TTL: time.Minute}, nil)

	_, err := v.Verify(context.Background(), "t")
	require.Error(t, err)
	_, err = v.Verify(context.Background(), "t")
	require.Error(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachingVerifierBypassesBrokenCache(t *testing.T) {
	next := &countingVerifier{sub: &Subject{ID: uuid.New()}}
	v := NewCachingVerifier(next, &mapCache{fail: true}, CacheConfig{TTL: time.Minute}, nil)

	sub, err := v.Verify(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, next.sub.ID, sub.ID)
}

func TestCachingVerifierCoalescesConcurrentCalls(t *testing.T) {
	next := &countingVerifier{sub: &Subject{ID: uuid.New()}, delay: 50 * time.Millisecond}
	v := NewCachingVerifier(next, &mapCache{data: map[string][]byte{}}, CacheConfig{TTL: time.Minute}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), "same")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, next.calls.Load())
}

type gatedVerifier struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	sub     *Subject

	mu     sync.Mutex
	ctxErr error
}

func newGatedVerifier(sub *Subject) *gatedVerifier {
	return &gatedVerifier{started: make(chan struct{}), release: make(chan struct{}), sub: sub}
}

func (g *gatedVerifier) Verify(ctx context.Context, _ string) (*Subject, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		g.mu.Lock()
		g.ctxErr = err
		g.mu.Unlock()
		return nil, err
	}
	return g.sub, nil
}

func TestCachingVerifierSharedCallSurvivesFirstCallerCancel(t *testing.T) {
	next := newGatedVerifier(&Subject{ID: uuid.New()})
	v := NewCachingVerifier(next, &mapCache{data: map[string][]byte{}}, CacheConfig{TTL: time.Minute, Timeout: 5 * time.Second}, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := v.Verify(ctxA, "tok")
		errA <- err
	}()
	<-next.started

	type result struct {
		sub *Subject
		err error
	}
	resB := make(chan result, 1)
	go func() {
		sub, err := v.Verify(context.Background(), "tok")
		resB <- result{sub, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(next.release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, next.sub.ID, res.sub.ID)
	case <-time.After(time.Second):
		t.Fatal("healthy caller never returned")
	}
	next.mu.Lock()
	defer next.mu.Unlock()
	assert.NoError(t, next.ctxErr, "shared upstream call must not see the first caller's cancel")
}

func TestCachingVerifierHonoursCallerDeadline(t *testing.T) {
	next := newGatedVerifier(&Subject{ID: uuid.New()})
	defer close(next.release)
	v := NewCachingVerifier(next, &mapCache{data: map[string][]byte{}}, CacheConfig{TTL: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := v.Verify(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCachingVerifierBoundsSharedCall(t *testing.T) {
	next := newGatedVerifier(&Subject{ID: uuid.New()})
	defer close(next.release)
	v := NewCachingVerifier(next, &mapCache{data: map[string][]byte{}}, CacheConfig{TTL: time.Minute, Timeout: 20 * time.Millisecond}, nil)

	_, err := v.Verify(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
