package matchmaking

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    gonanoid "github.com/matoous/go-nanoid/v2"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-arena/internal/notify"
    "github.com/park285/cheese-arena/internal/obslog"
    "github.com/park285/cheese-arena/internal/session"
    "github.com/park285/cheese-arena/pkg/arenadto"
)

type Manager struct {
    rdb      *redis.Client
    sessions *session.Manager
    notifier notify.Notifier
    allow    func(minutes, increment int) bool
    rated    bool
    ttl      time.Duration
    now      func() time.Time
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option { return func(m *Manager) { if n != nil { m.notifier = n } } }

// WithAllowedTimeControls restricts the pools players may join.
func WithAllowedTimeControls(allow func(minutes, increment int) bool) Option {
    return func(m *Manager) { m.allow = allow }
}

// WithRated makes matched sessions rated.
func WithRated(rated bool) Option { return func(m *Manager) { m.rated = rated } }

// WithTicketTTL bounds how long a waiting ticket stays in the pool.
func WithTicketTTL(d time.Duration) Option { return func(m *Manager) { if d > 0 { m.ttl = d } } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { if now != nil { m.now = now } } }

func NewManager(rdb *redis.Client, sessions *session.Manager, opts ...Option) *Manager {
    m := &Manager{rdb: rdb, sessions: sessions, notifier: notify.Nop{}, ttl: 10 * time.Minute, now: time.Now}
    for _, o := range opts { o(m) }
    return m
}

// Join matches the player against the oldest waiting ticket of the same pool,
// or queues a new ticket when the pool is empty.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
    if m == nil || m.rdb == nil || m.sessions == nil { return nil, fmt.Errorf("matchmaking manager not initialized") }
    req.PlayerID = strings.TrimSpace(req.PlayerID)
    if req.PlayerID == "" { return nil, fmt.Errorf("%w: player is required", arenadto.ErrInvalidArgs) }
    if req.TimeControl < 0 || req.Increment < 0 || (req.TimeControl == 0 && req.Increment == 0) {
        return nil, fmt.Errorf("%w: %d+%d", arenadto.ErrUnsupportedTimeControl, req.TimeControl, req.Increment)
    }
    if m.allow != nil && !m.allow(req.TimeControl, req.Increment) {
        return nil, fmt.Errorf("%w: %d+%d", arenadto.ErrUnsupportedTimeControl, req.TimeControl, req.Increment)
    }
    ticketID, err := gonanoid.New()
    if err != nil { return nil, fmt.Errorf("failed to generate ticket id: %w", err) }

    pool := poolKey(req.TimeControl, req.Increment)
    userK := userKey(req.PlayerID)
    var (
        result   *JoinResult
        opponent *Ticket
    )
    err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        // 대기 중인 티켓이 있으면 다른 풀이라도 중복 대기 금지
        own, err := loadUserTicket(ctx, tx, req.PlayerID)
        if err != nil { return err }
        if own != nil && own.Status == TicketWaiting {
            return fmt.Errorf("%w: ticket %s", arenadto.ErrAlreadyQueued, own.ID)
        }

        ids, err := tx.ZRange(ctx, pool, 0, -1).Result()
        if err != nil && err != redis.Nil { return err }
        var (
            cand  *Ticket
            stale []any
        )
        for _, id := range ids {
            t, err := loadTicket(ctx, tx, id)
            if err != nil { return err }
            if t == nil || t.Status != TicketWaiting || t.PlayerID == req.PlayerID {
                stale = append(stale, id)
                continue
            }
            cand = t
            break
        }

        now := m.now()
        mine := &Ticket{
            ID:          ticketID,
            PlayerID:    req.PlayerID,
            Name:        req.Name,
            Rating:      req.Rating,
            Games:       req.Games,
            TimeControl: req.TimeControl,
            Increment:   req.Increment,
            Status:      TicketWaiting,
            CreatedAt:   now,
        }

        if cand == nil {
            _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
                if len(stale) > 0 { pipe.ZRem(ctx, pool, stale...) }
                if err := queueTicket(ctx, pipe, mine, m.ttl); err != nil { return err }
                pipe.ZAdd(ctx, pool, redis.Z{Score: float64(now.UnixMilli()), Member: mine.ID})
                pipe.Expire(ctx, pool, m.ttl)
                return nil
            })
            if err != nil { return err }
            result = &JoinResult{Ticket: mine}
            return nil
        }

        s, err := m.sessions.Prepare(session.NewSession{
            First:       session.Player{ID: cand.PlayerID, Name: cand.Name, Rating: cand.Rating, Games: cand.Games},
            Second:      session.Player{ID: req.PlayerID, Name: req.Name, Rating: req.Rating, Games: req.Games},
            Colors:      session.ColorRandom,
            TimeControl: session.TimeControl{Minutes: req.TimeControl, Increment: req.Increment},
            Rated:       m.rated,
            Source:      session.SourceMatchmaking,
        })
        if err != nil { return err }

        matchedAt := now
        cand.Status, cand.SessionID, cand.OpponentID, cand.MatchedAt = TicketMatched, s.ID, req.PlayerID, &matchedAt
        mine.Status, mine.SessionID, mine.OpponentID, mine.MatchedAt = TicketMatched, s.ID, cand.PlayerID, &matchedAt

        _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.ZRem(ctx, pool, append(stale, cand.ID)...)
            if err := queueTicket(ctx, pipe, cand, m.ttl); err != nil { return err }
            if err := queueTicket(ctx, pipe, mine, m.ttl); err != nil { return err }
            return m.sessions.QueueCreate(ctx, pipe, s)
        })
        if err != nil { return err }
        result = &JoinResult{Matched: true, Ticket: mine, Session: s}
        opponent = cand
        return nil
    }, pool, userK)

    if errors.Is(err, redis.TxFailedErr) {
        obslog.L().Warn("mm_conflict", zap.String("player_id", req.PlayerID), zap.String("pool", pool))
        return nil, fmt.Errorf("%w: pool %s", arenadto.ErrConflict, pool)
    }
    if err != nil { return nil, err }

    if !result.Matched {
        obslog.L().Info("mm_waiting", zap.String("ticket_id", result.Ticket.ID), zap.String("player_id", req.PlayerID), zap.String("pool", pool))
        return result, nil
    }

    s := result.Session
    obslog.L().Info("mm_match",
        zap.String("session_id", s.ID),
        zap.String("pool", pool),
        zap.String("white_id", s.WhiteID),
        zap.String("black_id", s.BlackID),
        zap.String("waited_ticket", opponent.ID),
    )
    m.sessions.AfterCreate(ctx, s)
    now := m.now()
    events := make([]arenadto.Event, 0, 2)
    for _, p := range []string{s.WhiteID, s.BlackID} {
        color := "white"
        if p == s.BlackID { color = "black" }
        events = append(events, arenadto.Event{
            Kind: arenadto.EventMatchFound, Recipient: p, SessionID: s.ID,
            OpponentID: s.Opponent(p), Color: color, At: now,
        })
    }
    notify.Send(ctx, m.notifier, events...)
    return result, nil
}

// Cancel withdraws the player's waiting ticket. It returns the ticket as it
// stands afterwards; a ticket that already matched is returned unchanged.
func (m *Manager) Cancel(ctx context.Context, playerID string) (*Ticket, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("matchmaking manager not initialized") }
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return nil, fmt.Errorf("%w: player is required", arenadto.ErrInvalidArgs) }

    userK := userKey(playerID)
    id, err := m.rdb.Get(ctx, userK).Result()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }

    var out *Ticket
    changed := false
    err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        t, err := loadTicket(ctx, tx, id)
        if err != nil { return err }
        if t == nil || t.Status != TicketWaiting { out = t; return nil }
        pool := poolKey(t.TimeControl, t.Increment)
        if err := tx.Watch(ctx, pool).Err(); err != nil { return err }

        now := m.now()
        t.Status, t.CancelledAt = TicketCancelled, &now
        _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.ZRem(ctx, pool, t.ID)
            return queueTicket(ctx, pipe, t, m.ttl)
        })
        if err != nil { return err }
        out, changed = t, true
        return nil
    }, ticketKey(id), userK)

    if errors.Is(err, redis.TxFailedErr) {
        return nil, fmt.Errorf("%w: ticket %s", arenadto.ErrConflict, id)
    }
    if err != nil { return nil, err }
    if changed {
        obslog.L().Info("mm_cancel", zap.String("ticket_id", id), zap.String("player_id", playerID))
    }
    return out, nil
}

// Ticket returns the player's latest ticket, or nil if none is live.
func (m *Manager) Ticket(ctx context.Context, playerID string) (*Ticket, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("matchmaking manager not initialized") }
    return loadUserTicket(ctx, m.rdb, strings.TrimSpace(playerID))
}

// PoolSize counts waiting tickets of one pool, including ones whose keys
// have expired but not yet been swept out of the sorted set.
func (m *Manager) PoolSize(ctx context.Context, timeControl, increment int) (int64, error) {
    return m.rdb.ZCard(ctx, poolKey(timeControl, increment)).Result()
}
