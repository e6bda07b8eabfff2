package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister mirrors the session to Redis. Writes go through a MULTI/EXEC
// pipeline so the identity and permission keys always change together.
type RedisPersister struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisPersister constructs a RedisPersister. Keys are stored as
// "session:<namespace>:<key>"; a zero ttl keeps them until cleared.
func NewRedisPersister(client *redis.Client, namespace string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, namespace: namespace, ttl: ttl}
}

// Load implements Persister.
func (p *RedisPersister) Load(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = p.redisKey(k)
	}
	values, err := p.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

// Save implements Persister.
func (p *RedisPersister) Save(ctx context.Context, values map[string][]byte) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, p.redisKey(k), v, p.ttl)
		}
		return nil
	})
	return err
}

// Delete implements Persister.
func (p *RedisPersister) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = p.redisKey(k)
	}
	if err := p.client.Del(ctx, redisKeys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (p *RedisPersister) redisKey(key string) string {
	if p.namespace == "" {
		return "session:" + key
	}
	return "session:" + p.namespace + ":" + key
}

var _ Persister = (*RedisPersister)(nil)
