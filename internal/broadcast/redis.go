package broadcast

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis publishes JSON envelopes with PUBLISH; subscribers fan them out to clients.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client, prefix: "retailpos:"}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Publish(ctx context.Context, channel string, event string, payload any) error {
	msg, err := Encode(channel, event, payload, time.Now())
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+channel, msg).Err()
}
