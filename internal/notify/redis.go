package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes notifications on a pub/sub channel so other services can
// react to executed trades.
type Redis struct {
	client   publisher
	closer   func() error
	channel  string
	instance string
}

type redisPayload struct {
	Instance string `json:"instance"`
	Message  string `json:"message"`
	SentAt   int64  `json:"sent_at"`
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, channel, instance string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return &Redis{client: client, closer: client.Close, channel: channel, instance: instance}, nil
}

func (r *Redis) Notify(ctx context.Context, message string) error {
	data, err := json.Marshal(redisPayload{Instance: r.instance, Message: message, SentAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
