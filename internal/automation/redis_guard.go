package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const guardKeyPrefix = "relay:guard:"

// RedisGuard is the ExecutionGuard shared by every worker replica. Keys expire after ttl
// so a crashed worker cannot hold a recursion lock forever.
type RedisGuard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisGuard(rdb redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

// NewRedisClient opens a client from a redis:// URL and checks it is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (g *RedisGuard) Begin(ctx context.Context, exec Execution) (Decision, error) {
	active := guardKeyPrefix + "active:" + exec.activeKey()

	locked, err := g.rdb.SetNX(ctx, active, 1, g.ttl).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("acquiring execution lock: %w", err)
	}
	if !locked {
		return deny(ReasonRecursive), nil
	}

	if exec.EventID == "" {
		return allow(), nil
	}

	decision, err := g.claim(ctx, exec)
	if err != nil || !decision.Allowed {
		g.release(ctx, active)
	}
	return decision, err
}

// claim takes the per-rule marker first, then counts the execution with INCR so that
// concurrent replicas never both pass the cap. Over-cap attempts are rolled back.
func (g *RedisGuard) claim(ctx context.Context, exec Execution) (Decision, error) {
	eventKey := guardKeyPrefix + "event:" + exec.EventID
	ruleKey := guardKeyPrefix + "rule:" + exec.ruleKey()

	first, err := g.rdb.SetNX(ctx, ruleKey, 1, g.ttl).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("claiming rule execution: %w", err)
	}
	if !first {
		return deny(ReasonReentry), nil
	}

	pipe := g.rdb.TxPipeline()
	incr := pipe.Incr(ctx, eventKey)
	pipe.Expire(ctx, eventKey, g.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		g.release(ctx, ruleKey)
		return Decision{}, fmt.Errorf("counting event execution: %w", err)
	}
	if incr.Val() > MaxExecutionsPerEvent {
		if err := g.rdb.Decr(context.WithoutCancel(ctx), eventKey).Err(); err != nil {
			slog.WarnContext(ctx, "failed to roll back event execution count", "key", eventKey, "error", err)
		}
		g.release(ctx, ruleKey)
		return deny(ReasonEventLimit), nil
	}
	return allow(), nil
}

func (g *RedisGuard) End(ctx context.Context, exec Execution) {
	g.release(ctx, guardKeyPrefix+"active:"+exec.activeKey())
}

func (g *RedisGuard) release(ctx context.Context, key string) {
	// The lock expires on its own; a failed delete only delays the next run.
	if err := g.rdb.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		slog.WarnContext(ctx, "failed to release execution lock", "key", key, "error", err)
	}
}
