package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

const redisKeyPrefix = "lifeline:verdict:"

// RedisStore shares current verdicts across replicas so a moderator sees the
// same verdict whichever instance serves the approval.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, candidateID id.CandidateID) (*models.Verdict, error) {
	raw, err := s.client.Get(ctx, redisKey(candidateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	var v models.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}

func (s *RedisStore) Put(ctx context.Context, v *models.Verdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(v.CandidateID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set verdict: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, candidateID id.CandidateID) error {
	if err := s.client.Del(ctx, redisKey(candidateID)).Err(); err != nil {
		return fmt.Errorf("delete verdict: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func redisKey(candidateID id.CandidateID) string {
	return redisKeyPrefix + candidateID.String()
}
