package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xhad/vidrag/internal/models"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps jobs as JSON strings so several server replicas can share
// one job table. Terminal jobs get the TTL as their key expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	if config.Prefix == "" {
		config.Prefix = "vidrag:job:"
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: config.Prefix, ttl: config.TTL}, nil
}

func (s *RedisStore) Put(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	var expiry time.Duration
	if job.Status.Terminal() {
		expiry = s.ttl
	}
	if err := s.client.Set(ctx, s.prefix+job.ID, data, expiry).Err(); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.Job, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to read job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
