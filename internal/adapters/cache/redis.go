package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poyrazK/adminguard/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 10 * time.Second
	opTimeout   = 3 * time.Second
)

// RedisCache implements ports.DistributedCache on top of a single Redis node.
type RedisCache struct {
	client *redis.Client
}

var _ ports.DistributedCache = (*RedisCache)(nil)

func NewRedisCache(addr string, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
	return &RedisCache{client: rdb}
}

// NewRedisCacheFromURL parses a redis:// URL. The connection is not checked here;
// call Ping to verify reachability.
func NewRedisCacheFromURL(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DialTimeout = dialTimeout
	opt.ReadTimeout = opTimeout
	opt.WriteTimeout = opTimeout
	return &RedisCache{client: redis.NewClient(opt)}, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) SetAdd(ctx context.Context, key string, members ...string) error {
	return r.client.SAdd(ctx, key, toArgs(members)...).Err()
}

func (r *RedisCache) SetRemove(ctx context.Context, key string, members ...string) error {
	return r.client.SRem(ctx, key, toArgs(members)...).Err()
}

func (r *RedisCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

func (r *RedisCache) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisCache) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	var left *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		left = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	// TTL reports a negative duration for a key without expiry.
	if left.Val() < 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return incr.Val(), err
		}
	}
	return incr.Val(), nil
}

func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisCache) PushFront(ctx context.Context, key string, values ...string) error {
	return r.client.LPush(ctx, key, toArgs(values)...).Err()
}

func (r *RedisCache) Trim(ctx context.Context, key string, start, stop int64) error {
	return r.client.LTrim(ctx, key, start, stop).Err()
}

func (r *RedisCache) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

// Batch queues every op into one MULTI/EXEC transaction.
func (r *RedisCache) Batch(ctx context.Context, ops []ports.CacheOp) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case ports.OpSetAdd:
				pipe.SAdd(ctx, op.Key, op.Value)
			case ports.OpSetRemove:
				pipe.SRem(ctx, op.Key, op.Value)
			case ports.OpSetWithExpiry:
				pipe.Set(ctx, op.Key, op.Value, op.TTL)
			case ports.OpDelete:
				pipe.Del(ctx, op.Key)
			case ports.OpIncrement:
				pipe.Incr(ctx, op.Key)
			case ports.OpExpire:
				pipe.Expire(ctx, op.Key, op.TTL)
			case ports.OpPushFront:
				pipe.LPush(ctx, op.Key, op.Value)
			case ports.OpTrim:
				pipe.LTrim(ctx, op.Key, op.Start, op.Stop)
			default:
				return fmt.Errorf("unknown cache op kind %d", op.Kind)
			}
		}
		return nil
	})
	return err
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
