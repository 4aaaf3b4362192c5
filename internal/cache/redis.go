// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list lobby events are pushed onto.
const DefaultQueueName = "imposter_lobby_events"

// LobbyEvent is one journal entry: the realtime message type that was sent
// and its payload, for replay or offline analysis by other consumers.
type LobbyEvent struct {
	LobbyID   uuid.UUID `json:"lobby_id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp int64     `json:"timestamp"`
}

// Journal records lobby events.
type Journal interface {
	Publish(ctx context.Context, ev LobbyEvent) error
}

// ConnectRedis creates a client for addr and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisJournal RPushes JSON-encoded events onto a list.
type RedisJournal struct {
	rdb   *redis.Client
	queue string
}

func NewRedisJournal(rdb *redis.Client, queue string) *RedisJournal {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisJournal{rdb: rdb, queue: queue}
}

// Publish serializes ev and pushes it to the queue.
func (j *RedisJournal) Publish(ctx context.Context, ev LobbyEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal LobbyEvent: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// Nop discards events. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, LobbyEvent) error { return nil }
