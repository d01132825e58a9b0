package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"github.com/edukit/agent-workflow/types"
)

const (
	workflowPrefix  = "workflow:"
	executionPrefix = "execution:"
)

// RedisStore is a Redis-backed implementation of the Store interface,
// suitable for durable archival of definitions and execution records.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStore creates a new RedisStore instance with configurable options.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStore{client: client}, nil
}

// saveToRedis marshals and stores a value under prefix+id.
func (s *RedisStore) saveToRedis(ctx context.Context, prefix, id string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", prefix, id, err)
		}
		key := prefix + id
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// getFromRedis retrieves and unmarshals a value stored under prefix+id.
func getFromRedis[T any](ctx context.Context, client *redis.Client, prefix, id string, errNotFound error) (*T, error) {
	return withContext(ctx, func() (*T, error) {
		key := prefix + id
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: id=%s", errNotFound, id)
		} else if err != nil {
			return nil, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return &result, nil
	})
}

// listFromRedis retrieves and unmarshals every value under a key prefix.
func listFromRedis[T any](ctx context.Context, client *redis.Client, prefix string) ([]*T, error) {
	return withContext(ctx, func() ([]*T, error) {
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s keys: %v", prefix, err)
		}

		items := make([]*T, 0, len(keys))
		for _, key := range keys {
			data, err := client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("failed to get %s: %v", key, err)
			}
			var item T
			if err := json.Unmarshal(data, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}
			items = append(items, &item)
		}
		return items, nil
	})
}

// SaveWorkflow saves a workflow definition to Redis.
func (s *RedisStore) SaveWorkflow(ctx context.Context, wf *types.Workflow) error {
	return s.saveToRedis(ctx, workflowPrefix, wf.ID, wf)
}

// GetWorkflow retrieves a workflow definition from Redis.
func (s *RedisStore) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return getFromRedis[types.Workflow](ctx, s.client, workflowPrefix, id, ErrWorkflowNotFound)
}

// ListWorkflows returns all workflow definitions stored in Redis.
func (s *RedisStore) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	return listFromRedis[types.Workflow](ctx, s.client, workflowPrefix)
}

// SaveWorkflows saves multiple workflow definitions to Redis using pipelining.
func (s *RedisStore) SaveWorkflows(ctx context.Context, wfs []*types.Workflow) error {
	return withContextError(ctx, func() error {
		pipe := s.client.Pipeline()
		for _, wf := range wfs {
			data, err := json.Marshal(wf)
			if err != nil {
				return fmt.Errorf("failed to marshal workflow %s: %v", wf.ID, err)
			}
			pipe.Set(ctx, workflowPrefix+wf.ID, data, 0)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for workflows: %v", err)
		}
		return nil
	})
}

// SaveExecution saves an execution record to Redis.
func (s *RedisStore) SaveExecution(ctx context.Context, exec *types.Execution) error {
	return s.saveToRedis(ctx, executionPrefix, exec.ID, exec)
}

// GetExecution retrieves an execution record from Redis.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	return getFromRedis[types.Execution](ctx, s.client, executionPrefix, id, ErrExecutionNotFound)
}

// ListExecutions returns all execution records stored in Redis.
func (s *RedisStore) ListExecutions(ctx context.Context) ([]*types.Execution, error) {
	return listFromRedis[types.Execution](ctx, s.client, executionPrefix)
}

// ClearTerminal removes completed and failed execution records from Redis.
func (s *RedisStore) ClearTerminal(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, executionPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan execution keys: %v", err)
		}

		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var exec types.Execution
			if err := json.Unmarshal(data, &exec); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}

			if exec.Status.Terminal() {
				pipe.Del(ctx, key)
			}
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
