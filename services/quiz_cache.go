package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quickquiz/models"

	"github.com/redis/go-redis/v9"
)

// QuizCache holds public quiz payloads. Quizzes never change after creation
// so entries only expire by TTL.
type QuizCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, quizID string) (*models.Quiz, error)
	Set(ctx context.Context, quiz *models.Quiz) error
}

type redisQuizCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQuizCache(client *redis.Client, ttl time.Duration) QuizCache {
	return &redisQuizCache{
		client: client,
		ttl:    ttl,
	}
}

func quizCacheKey(quizID string) string {
	return "quiz:" + quizID
}

func (c *redisQuizCache) Get(ctx context.Context, quizID string) (*models.Quiz, error) {
	data, err := c.client.Get(ctx, quizCacheKey(quizID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached quiz: %w", err)
	}

	var quiz models.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return nil, fmt.Errorf("failed to decode cached quiz: %w", err)
	}
	return &quiz, nil
}

func (c *redisQuizCache) Set(ctx context.Context, quiz *models.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("failed to encode quiz: %w", err)
	}

	if err := c.client.Set(ctx, quizCacheKey(quiz.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache quiz: %w", err)
	}
	return nil
}
