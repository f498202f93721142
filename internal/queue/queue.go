package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is the dispatch notification. It carries only identifiers;
// the ledger stays authoritative for everything else.
type Message struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind,omitempty"`

	// Delivery identifies one enqueue of this job. A job can be enqueued
	// more than once (retries re-enqueue while the previous delivery may
	// still sit in the processing list), and Ack/claim tracking match list
	// and ZSET members by exact bytes, so deliveries must never encode
	// identically.
	Delivery string `json:"delivery,omitempty"`

	// raw is the exact encoding claimed off the queue, kept so Ack removes
	// the same list element.
	raw string
}

// stamped returns the message with its delivery id assigned.
func (m Message) stamped() Message {
	if m.Delivery == "" {
		m.Delivery = uuid.NewString()
	}
	return m
}

type Queue interface {
	Enqueue(ctx context.Context, m Message) error
	ClaimBlocking(ctx context.Context, wait time.Duration) (Message, error)
	Ack(ctx context.Context, m Message) error
	RequeueStale(ctx context.Context, max int64) (int64, error)
}

// redisQueue implements an at-least-once reliable queue on Redis lists.
// Claim: BRPOPLPUSH queue -> processing, with the claim time recorded in a
// ZSET. Ack: LREM from processing. A reaper moves claims older than the
// visibility timeout back to the queue, so a worker that dies mid-job never
// silently drops it.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
	visibility    time.Duration
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey, claimsKey string, visibility time.Duration) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimsKey:     claimsKey,
		visibility:    visibility,
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, m Message) error {
	b, err := json.Marshal(m.stamped())
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueKey, string(b)).Err()
}

// ClaimBlocking waits up to `wait` for a message. Returns redis.Nil when the
// queue stayed empty.
func (q *redisQueue) ClaimBlocking(ctx context.Context, wait time.Duration) (Message, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
	if err != nil {
		return Message{}, err
	}

	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m.JobID == "" {
		// Poison entry: drop it rather than recycle it forever.
		_ = q.rdb.LRem(ctx, q.processingKey, 1, raw).Err()
		return Message{}, errors.New("malformed queue message")
	}
	m.raw = raw

	// Millisecond scores: whole-second truncation would let the reaper
	// judge a claim stale up to a second early.
	now := float64(time.Now().UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.claimsKey, redis.Z{Score: now, Member: raw}).Err(); err != nil {
		// Claim cannot be tracked for redelivery; put it back.
		_ = q.rdb.LRem(ctx, q.processingKey, 1, raw).Err()
		_ = q.rdb.LPush(ctx, q.queueKey, raw).Err()
		return Message{}, err
	}

	return m, nil
}

func (q *redisQueue) Ack(ctx context.Context, m Message) error {
	raw := m.raw
	if raw == "" {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		raw = string(b)
	}

	if err := q.rdb.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
		return err
	}
	_ = q.rdb.ZRem(ctx, q.claimsKey, raw).Err()
	return nil
}

// RequeueStale moves claims older than the visibility timeout back onto the
// queue, up to max entries. Redelivered duplicates are harmless: the ledger's
// conditional transitions make the extra worker discard them.
func (q *redisQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	cutoff := time.Now().Add(-q.visibility).UnixMilli()

	stale, err := q.rdb.ZRangeByScore(ctx, q.claimsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff, 10),
		Count: max,
	}).Result()
	if err != nil {
		return 0, err
	}

	var moved int64
	for _, raw := range stale {
		removed, err := q.rdb.LRem(ctx, q.processingKey, 1, raw).Result()
		if err != nil {
			return moved, err
		}
		if removed > 0 {
			if err := q.rdb.LPush(ctx, q.queueKey, raw).Err(); err != nil {
				return moved, err
			}
			moved++
		}
		_ = q.rdb.ZRem(ctx, q.claimsKey, raw).Err()
	}

	return moved, nil
}
