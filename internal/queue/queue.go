// Package queue moves claim dispatches from the start-process trigger to
// the background worker over a redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quadrel/pecbridge/internal/claim"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope wraps a queue item with its delivery bookkeeping.
type Envelope struct {
	MessageID string          `json:"messageId"`
	Attempts  int             `json:"attempts"`
	Item      claim.QueueItem `json:"item"`
}

// Queue is a redis-list backed claim queue. Producers push on the left,
// the worker pops from the right, so dispatch order is preserved.
type Queue struct {
	rdb  *redis.Client
	key  string
	node *snowflake.Node
	log  *zap.Logger
}

func New(rdb *redis.Client, key string, log *zap.Logger) (*Queue, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}
	return &Queue{
		rdb:  rdb,
		key:  key,
		node: node,
		log:  log.Named("claim.queue"),
	}, nil
}

// Enqueue pushes one envelope per item, each with a fresh message id.
func (q *Queue) Enqueue(ctx context.Context, items ...claim.QueueItem) error {
	for _, item := range items {
		if err := q.push(ctx, Envelope{
			MessageID: q.node.Generate().String(),
			Item:      item,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Requeue pushes the envelope back with its attempt count bumped.
func (q *Queue) Requeue(ctx context.Context, env Envelope) error {
	env.Attempts++
	return q.push(ctx, env)
}

func (q *Queue) push(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode queue envelope: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push queue envelope: %w", err)
	}
	q.log.Debug("claim dispatched",
		zap.String("message_id", env.MessageID),
		zap.String("organization_code", env.Item.OrganizationCode),
		zap.Int("attempts", env.Attempts),
	)
	return nil
}

// Dequeue blocks up to idle for the next envelope. A nil envelope with a
// nil error means the queue stayed empty for the whole window.
func (q *Queue) Dequeue(ctx context.Context, idle time.Duration) (*Envelope, error) {
	result, err := q.rdb.BRPop(ctx, idle, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop queue envelope: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(result))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("decode queue envelope: %w", err)
	}
	return &env, nil
}

// Len reports the number of pending envelopes.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
