package notification

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper suppresses duplicate deliveries across processes using SET NX.
// Keys expire after the window; a redelivered transition inside the window is
// collapsed, anything later is treated as new.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisDeduper{client: client, window: window}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, "coitrack:notif:"+key, 1, d.window).Result()
}
