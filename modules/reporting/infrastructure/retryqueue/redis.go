// Package retryqueue holds failed aggregations until the replay job runs them again.
package retryqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rai/order-reporting/modules/reporting/domain"
)

const (
	deadLetterSuffix = ":dead"
	inFlightSuffix   = ":inflight"
)

// RedisQueue keeps failures in a Redis list, oldest at the head.
// Dequeued entries move with LMOVE to key + ":inflight" and stay there until
// acknowledged. Dead letters go to key + ":dead".
type RedisQueue struct {
	rdb *goredis.Client
	key string
}

func NewRedisQueue(rdb *goredis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) inFlightKey() string   { return q.key + inFlightSuffix }
func (q *RedisQueue) deadLetterKey() string { return q.key + deadLetterSuffix }

func (q *RedisQueue) Enqueue(ctx context.Context, failure domain.FailedAggregation) error {
	return q.push(ctx, q.key, failure)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, failure domain.FailedAggregation) error {
	return q.push(ctx, q.deadLetterKey(), failure)
}

func (q *RedisQueue) push(ctx context.Context, key string, failure domain.FailedAggregation) error {
	raw, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("encoding failed aggregation: %w", err)
	}
	if err := q.rdb.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue moves up to max entries to the in-flight list. The raw entry is the
// receipt. Entries that no longer decode are moved to the dead-letter list;
// if that move fails they stay in flight and come back with Recover.
func (q *RedisQueue) Dequeue(ctx context.Context, max int) ([]domain.QueuedFailure, error) {
	var (
		out  []domain.QueuedFailure
		errs []error
	)
	for len(out) < max {
		raw, err := q.rdb.LMove(ctx, q.key, q.inFlightKey(), "LEFT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("redis lmove %s: %w", q.key, err))
			break
		}

		var failure domain.FailedAggregation
		if err := json.Unmarshal([]byte(raw), &failure); err != nil {
			if parkErr := q.park(ctx, raw); parkErr != nil {
				errs = append(errs, fmt.Errorf("parking undecodable entry: %w", parkErr))
			}
			continue
		}
		out = append(out, domain.QueuedFailure{FailedAggregation: failure, Receipt: raw})
	}
	return out, errors.Join(errs...)
}

func (q *RedisQueue) park(ctx context.Context, raw string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, q.deadLetterKey(), raw)
		pipe.LRem(ctx, q.inFlightKey(), 1, raw)
		return nil
	})
	return err
}

func (q *RedisQueue) Ack(ctx context.Context, entry domain.QueuedFailure) error {
	if err := q.rdb.LRem(ctx, q.inFlightKey(), 1, entry.Receipt).Err(); err != nil {
		return fmt.Errorf("redis lrem %s: %w", q.inFlightKey(), err)
	}
	return nil
}

// Recover moves in-flight entries back to the head of the queue, keeping their
// order. With several replicas an entry another replica is still replaying may
// run twice; the contribution ledger makes the second run a no-op.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.inFlightKey(), q.key, "RIGHT", "LEFT").Err()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("redis lmove %s: %w", q.inFlightKey(), err)
		}
		n++
	}
}

// Len reports the number of queued failures, not counting in-flight ones.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

var _ domain.RetryQueue = (*RedisQueue)(nil)
