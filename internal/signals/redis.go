package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/identity-guardian/guardian/internal/models"
)

// RedisStore keeps each subject's log in a sorted set scored by observation
// time, so windowed reads are range queries and horizon eviction is a single
// trim per touch.
type RedisStore struct {
	redis   *redis.Client
	horizon time.Duration
}

// NewRedisStore creates a Redis-backed signal log with the given retention
// horizon.
func NewRedisStore(client *redis.Client, horizon time.Duration) *RedisStore {
	return &RedisStore{redis: client, horizon: horizon}
}

func (s *RedisStore) key(subjectID string) string {
	return fmt.Sprintf("signals:%s", subjectID)
}

// Append records a signal and trims entries past the retention horizon.
func (s *RedisStore) Append(ctx context.Context, sig models.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	key := s.key(sig.SubjectID)
	score := float64(sig.ObservedAt.UnixNano())

	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: string(data)})
	cutoff := time.Now().Add(-s.horizon).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	// Key TTL outlives the horizon so an idle subject's log still expires
	pipe.Expire(ctx, key, s.horizon*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append signal: %w", err)
	}

	return nil
}

// Window returns signals observed within [from, to], ascending.
func (s *RedisStore) Window(ctx context.Context, subjectID string, from, to time.Time) ([]models.Signal, error) {
	members, err := s.redis.ZRangeByScore(ctx, s.key(subjectID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixNano()),
		Max: fmt.Sprintf("%d", to.UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read signal log: %w", err)
	}

	out := make([]models.Signal, 0, len(members))
	for _, m := range members {
		var sig models.Signal
		if err := json.Unmarshal([]byte(m), &sig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal: %w", err)
		}
		out = append(out, sig)
	}

	return out, nil
}

// Snapshot returns every unexpired signal for the subject, ascending.
func (s *RedisStore) Snapshot(ctx context.Context, subjectID string) ([]models.Signal, error) {
	now := time.Now()
	return s.Window(ctx, subjectID, now.Add(-s.horizon), now)
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
