// Package tasks is the async execution layer: a worker pool with Celery
// style task states, explicit retry policy, best-effort cancellation, and
// the scheduled batch retrain.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siprems/backend-go/internal/config"
	"github.com/siprems/backend-go/internal/domain"
)

const taskKeyPrefix = "task:"

// Store persists task state so status can be polled across processes.
type Store interface {
	Create(ctx context.Context, task *domain.AsyncTask) error
	Update(ctx context.Context, task *domain.AsyncTask) error
	Get(ctx context.Context, id string) (*domain.AsyncTask, error)
}

// MemoryStore keeps task state in process, for tests and single-process
// deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.AsyncTask
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*domain.AsyncTask)}
}

func (s *MemoryStore) Create(ctx context.Context, task *domain.AsyncTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *task
	s.tasks[task.ID] = &t
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, task *domain.AsyncTask) error {
	return s.Create(ctx, task)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.AsyncTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t := *task
	return &t, nil
}

// RedisStore is the shared result backend for multi-process deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TaskTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func buildRedisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

func (s *RedisStore) Create(ctx context.Context, task *domain.AsyncTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := s.client.Set(ctx, taskKeyPrefix+task.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, task *domain.AsyncTask) error {
	return s.Create(ctx, task)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.AsyncTask, error) {
	payload, err := s.client.Get(ctx, taskKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var task domain.AsyncTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}
