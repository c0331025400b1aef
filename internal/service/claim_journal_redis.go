package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ekh_mining/internal/retry"

	redis "github.com/redis/go-redis/v9"
)

const (
	claimKeyPrefix    = "referral_claim:"
	completedClaimTTL = 7 * 24 * time.Hour
)

// RedisClaimJournal keeps claim records as JSON strings. Pending records
// never expire; completed ones are kept for a week.
type RedisClaimJournal struct {
	client *redis.Client
}

func NewRedisClaimJournal(client *redis.Client) *RedisClaimJournal {
	return &RedisClaimJournal{client: client}
}

func (j *RedisClaimJournal) Get(ctx context.Context, refereeUserID string) (*ClaimRecord, error) {
	b, err := j.client.Get(ctx, claimKeyPrefix+refereeUserID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisErr(err)
	}

	var rec ClaimRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode claim record: %w", err)
	}
	return &rec, nil
}

func (j *RedisClaimJournal) Put(ctx context.Context, rec ClaimRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if rec.Stage == ClaimCompleted {
		ttl = completedClaimTTL
	}
	return redisErr(j.client.Set(ctx, claimKeyPrefix+rec.RefereeUserID, b, ttl).Err())
}

// server replies are terminal, anything else is a connection problem
func redisErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		return err
	}
	return retry.Transient(err)
}
