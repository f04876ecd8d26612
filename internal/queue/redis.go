// Package queue feeds targets from a Redis list so a fleet of checkers
// can share one backlog of hosts.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisQueue struct {
	cli        *redis.Client
	queueKey   string
	workingKey string
	leaseTTL   time.Duration
}

type entry struct {
	Target     string `json:"target"`
	EnqueuedAt int64  `json:"enqueued_at"`
	Attempt    int    `json:"attempt"`
}

func NewRedis(addr, key string, lease time.Duration) (*RedisQueue, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisQueue{cli: cli, queueKey: key, workingKey: key + ":working", leaseTTL: lease}, nil
}

// Lease pops one target into the working list and returns it along
// with an ack that removes it once the check is done. An empty target
// with nil error means the poll timed out.
func (q *RedisQueue) Lease(ctx context.Context) (string, func() error, error) {
	res, err := q.cli.BRPopLPush(ctx, q.queueKey, q.workingKey, 5*time.Second).Result()
	if err == redis.Nil {
		return "", func() error { return nil }, nil
	}
	if err != nil {
		return "", func() error { return err }, err
	}
	var e entry
	if err := json.Unmarshal([]byte(res), &e); err != nil {
		return "", func() error { return err }, err
	}
	ack := func() error {
		return q.cli.LRem(ctx, q.workingKey, 1, res).Err()
	}
	return e.Target, ack, nil
}

// Seed pushes a target onto the queue.
func (q *RedisQueue) Seed(ctx context.Context, target string) error {
	b, _ := json.Marshal(entry{Target: target, EnqueuedAt: time.Now().UTC().Unix()})
	return q.cli.LPush(ctx, q.queueKey, string(b)).Err()
}

// Ping reports queue reachability, used by the health handler.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.cli.Ping(ctx).Err()
}
