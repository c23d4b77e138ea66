package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is prepended to the recipient id to form the pub/sub channel.
const ChannelPrefix = "arena:notify:"

func Channel(recipient string) string { return ChannelPrefix + strings.TrimSpace(recipient) }

// RedisPublisher publishes events as JSON on a per-recipient channel.
type RedisPublisher struct{ rdb *redis.Client }

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher { return &RedisPublisher{rdb: rdb} }

func (p *RedisPublisher) Notify(ctx context.Context, ev arenadto.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(ev.Recipient), raw).Err()
}
