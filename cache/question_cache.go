// Package cache keeps hot question lookups out of the database. Questions are
// immutable reference data once a match uses them, so a short TTL plus
// invalidation on admin writes is enough.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"trivia-duel/models"

	"github.com/redis/go-redis/v9"
)

const questionKeyPrefix = "question:"

type QuestionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQuestionCache(rdb *redis.Client, ttl time.Duration) *QuestionCache {
	return &QuestionCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached question. ok is false on a miss.
func (c *QuestionCache) Get(ctx context.Context, id string) (q models.PublicQuestion, ok bool, err error) {
	val, err := c.rdb.Get(ctx, questionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return q, false, nil
	}
	if err != nil {
		return q, false, err
	}
	if err := json.Unmarshal(val, &q); err != nil {
		// corrupt entry, treat as a miss
		c.rdb.Del(ctx, questionKeyPrefix+id)
		return q, false, nil
	}
	return q, true, nil
}

func (c *QuestionCache) Set(ctx context.Context, q models.PublicQuestion) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, questionKeyPrefix+q.ID, data, c.ttl).Err()
}

func (c *QuestionCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, questionKeyPrefix+id).Err()
}
