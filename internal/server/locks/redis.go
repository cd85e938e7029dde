package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another node is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// redisClient is the part of redis.UniversalClient the locker uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker shares locks between server replicas. Locks expire after ttl
// so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	prefix string
	log    logging.Logger
}

func NewRedisLocker(client redisClient, ttl time.Duration, log logging.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, prefix: "zkvault:lock:", log: log}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, false, err
	}

	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.client.Eval(ctx, releaseScript, []string{k}, token).Err(); err != nil {
			r.log.Warn(ctx, "lock release failed", "key", key, "err", err)
		}
	}, true, nil
}
