//go:build integration

package window_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lifeline/internal/ratelimit/models"
	"lifeline/internal/ratelimit/store/window"
	"lifeline/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *window.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = window.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestFixedWindow() {
	ctx := context.Background()
	limit := models.Limit{MaxRequests: 3, Window: time.Minute}
	now := time.Now()

	for i := 1; i <= limit.MaxRequests; i++ {
		result, err := s.store.Allow(ctx, "rl:emergency:1.2.3.4", limit, now)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(limit.MaxRequests-i, result.Remaining)
	}

	denied, err := s.store.Allow(ctx, "rl:emergency:1.2.3.4", limit, now)
	s.Require().NoError(err)
	s.False(denied.Allowed)
	s.Equal(0, denied.Remaining)
	s.WithinDuration(now.Add(limit.Window), denied.ResetAt, time.Second)

	count, err := s.redis.Client.Get(ctx, "lifeline:rl:emergency:1.2.3.4").Int()
	s.Require().NoError(err)
	s.Equal(limit.MaxRequests, count, "denial must not increment")
}

func (s *RedisStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	limit := models.Limit{MaxRequests: 1, Window: 200 * time.Millisecond}

	first, err := s.store.Allow(ctx, "rl:auth:u1", limit, time.Now())
	s.Require().NoError(err)
	s.True(first.Allowed)

	s.Eventually(func() bool {
		r, err := s.store.Allow(ctx, "rl:auth:u1", limit, time.Now())
		return err == nil && r.Allowed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()
	limit := models.Limit{MaxRequests: 1, Window: time.Minute}
	_, _ = s.store.Allow(ctx, "rl:standard:x", limit, time.Now())

	s.Require().NoError(s.store.Reset(ctx, "rl:standard:x"))
	result, err := s.store.Allow(ctx, "rl:standard:x", limit, time.Now())
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisStoreSuite) TestConcurrentAllow() {
	ctx := context.Background()
	limit := models.Limit{MaxRequests: 10, Window: time.Minute}
	const goroutines = 50

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(ctx, "rl:emergency:race", limit, time.Now())
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(limit.MaxRequests), allowed.Load())
}
