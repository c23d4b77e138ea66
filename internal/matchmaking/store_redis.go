package matchmaking

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

func poolKey(tc, inc int) string   { return fmt.Sprintf("arena:mm:pool:%d+%d", tc, inc) }
func ticketKey(id string) string   { return "arena:mm:ticket:" + strings.TrimSpace(id) }
func userKey(player string) string { return "arena:mm:user:" + strings.TrimSpace(player) }

type getter interface {
    Get(ctx context.Context, key string) *redis.StringCmd
}

func loadTicket(ctx context.Context, g getter, id string) (*Ticket, error) {
    raw, err := g.Get(ctx, ticketKey(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var t Ticket
    if err := json.Unmarshal(raw, &t); err != nil { return nil, fmt.Errorf("decode ticket %s: %w", id, err) }
    return &t, nil
}

// loadUserTicket follows the per-player pointer to the latest ticket.
func loadUserTicket(ctx context.Context, g getter, player string) (*Ticket, error) {
    id, err := g.Get(ctx, userKey(player)).Result()
    if err == redis.Nil || strings.TrimSpace(id) == "" { return nil, nil }
    if err != nil { return nil, err }
    return loadTicket(ctx, g, id)
}

func queueTicket(ctx context.Context, pipe redis.Pipeliner, t *Ticket, ttl time.Duration) error {
    raw, err := json.Marshal(t)
    if err != nil { return err }
    pipe.Set(ctx, ticketKey(t.ID), raw, ttl)
    pipe.Set(ctx, userKey(t.PlayerID), t.ID, ttl)
    return nil
}
