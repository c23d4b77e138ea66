package session

import (
    "context"
    "crypto/rand"
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-arena/internal/archive"
    "github.com/park285/cheese-arena/internal/notify"
    "github.com/park285/cheese-arena/internal/obslog"
    "github.com/park285/cheese-arena/pkg/arenadto"
)

// CompletionHook runs after a session completing transition has committed.
type CompletionHook func(ctx context.Context, s *Session)

type Manager struct {
    rdb      *redis.Client
    notifier notify.Notifier
    repo     archive.Repository
    hooks    []CompletionHook
    ttl      time.Duration
    now      func() time.Time
    flip     func() bool
    newID    func() string
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option { return func(m *Manager) { if n != nil { m.notifier = n } } }

// WithTTL sets how long session keys live after their last write.
func WithTTL(d time.Duration) Option { return func(m *Manager) { if d > 0 { m.ttl = d } } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { if now != nil { m.now = now } } }

// WithCoinFlip replaces the random color assignment. true gives white to the first player.
func WithCoinFlip(flip func() bool) Option { return func(m *Manager) { if flip != nil { m.flip = flip } } }

func NewManager(rdb *redis.Client, opts ...Option) *Manager {
    m := &Manager{
        rdb:      rdb,
        notifier: notify.Nop{},
        ttl:      24 * time.Hour,
        now:      time.Now,
        flip:     coinFlip,
        newID:    uuid.NewString,
    }
    for _, o := range opts { o(m) }
    return m
}

// AttachArchive wires a repository for persisting completed games.
func (m *Manager) AttachArchive(r archive.Repository) {
    if m != nil { m.repo = r }
}

// OnComplete registers a hook. Register hooks before serving traffic.
func (m *Manager) OnComplete(h CompletionHook) {
    if m != nil && h != nil { m.hooks = append(m.hooks, h) }
}

func coinFlip() bool {
    var b [1]byte
    if _, err := rand.Read(b[:]); err != nil { return time.Now().UnixNano()&1 == 0 }
    return b[0]&1 == 0
}

func sessionKey(id string) string { return "arena:session:" + strings.TrimSpace(id) }
func movesKey(id string) string   { return sessionKey(id) + ":moves" }
func idxUserKey(player string) string { return "arena:index:user:" + strings.TrimSpace(player) }

const activeKey = "arena:sessions:active"

type reader interface {
    Get(ctx context.Context, key string) *redis.StringCmd
    LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func loadSession(ctx context.Context, r reader, id string) (*Session, error) {
    raw, err := r.Get(ctx, sessionKey(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var s Session
    if err := json.Unmarshal(raw, &s); err != nil { return nil, fmt.Errorf("decode session %s: %w", id, err) }
    return &s, nil
}

func loadMoves(ctx context.Context, r reader, id string) ([]MoveRecord, error) {
    items, err := r.LRange(ctx, movesKey(id), 0, -1).Result()
    if err != nil && err != redis.Nil { return nil, err }
    out := make([]MoveRecord, 0, len(items))
    for _, it := range items {
        var rec MoveRecord
        if err := json.Unmarshal([]byte(it), &rec); err != nil { return nil, fmt.Errorf("decode move of %s: %w", id, err) }
        out = append(out, rec)
    }
    return out, nil
}

func notFound(id string) error { return fmt.Errorf("%w: session %s", arenadto.ErrNotFound, id) }

// Prepare builds an active session without storing it. Callers that need the
// session written inside their own transaction pair it with QueueCreate and
// AfterCreate.
func (m *Manager) Prepare(ns NewSession) (*Session, error) {
    id := strings.TrimSpace(ns.ID)
    if id == "" { id = m.newID() }
    return build(ns, id, m.now(), m.flip())
}

// keep is how long s stays stored after a write: the manager TTL, or the
// session's own longer one.
func (m *Manager) keep(s *Session) time.Duration {
    if d := time.Duration(s.KeepSeconds) * time.Second; d > m.ttl { return d }
    return m.ttl
}

// QueueCreate queues the writes of a new session on pipe.
func (m *Manager) QueueCreate(ctx context.Context, pipe redis.Pipeliner, s *Session) error {
    raw, err := json.Marshal(s)
    if err != nil { return err }
    pipe.Set(ctx, sessionKey(s.ID), raw, m.keep(s))
    pipe.Del(ctx, movesKey(s.ID))
    m.queueIndex(ctx, pipe, s)
    return nil
}

func (m *Manager) queueIndex(ctx context.Context, pipe redis.Pipeliner, s *Session) {
    switch s.Status {
    case StatusActive:
        pipe.SAdd(ctx, activeKey, s.ID)
    case StatusCompleted:
        pipe.SRem(ctx, activeKey, s.ID)
    }
    for _, p := range []string{s.WhiteID, s.BlackID, s.HostID} {
        if strings.TrimSpace(p) == "" { continue }
        key := idxUserKey(p)
        pipe.SAdd(ctx, key, s.ID)
        // 인덱스 키 TTL도 세션 TTL과 함께 갱신
        pipe.Expire(ctx, key, m.keep(s))
    }
}

// AfterCreate logs and announces a committed session.
func (m *Manager) AfterCreate(ctx context.Context, s *Session) {
    obslog.L().Info("session_created",
        zap.String("session_id", s.ID),
        zap.String("source", string(s.Source)),
        zap.String("status", string(s.Status)),
        zap.String("white_id", s.WhiteID),
        zap.String("black_id", s.BlackID),
        zap.String("time_control", s.TimeControl.String()),
        zap.Bool("rated", s.Rated),
    )
    if s.Status == StatusActive {
        notify.Send(ctx, m.notifier, startedEvents(s, m.now())...)
    }
}

// Create stores a new active session.
func (m *Manager) Create(ctx context.Context, ns NewSession) (*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    s, err := m.Prepare(ns)
    if err != nil { return nil, err }
    if _, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        return m.QueueCreate(ctx, pipe, s)
    }); err != nil {
        return nil, fmt.Errorf("store session: %w", err)
    }
    m.AfterCreate(ctx, s)
    return s, nil
}

// CreateOpen stores a waiting session with only the host seated.
func (m *Manager) CreateOpen(ctx context.Context, seat OpenSeat) (*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    s, err := buildOpen(seat, m.newID(), m.now())
    if err != nil { return nil, err }
    if _, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        return m.QueueCreate(ctx, pipe, s)
    }); err != nil {
        return nil, fmt.Errorf("store session: %w", err)
    }
    m.AfterCreate(ctx, s)
    return s, nil
}

type transition func(cur *Session, moves []MoveRecord, now time.Time) (*change, error)

// mutate runs fn under WATCH on the session and its move list. A nil change
// commits nothing and returns the current session.
func (m *Manager) mutate(ctx context.Context, id string, fn transition) (*change, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    id = strings.TrimSpace(id)
    if id == "" { return nil, fmt.Errorf("%w: session id is required", arenadto.ErrInvalidArgs) }

    var out *change
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := loadSession(ctx, tx, id)
        if err != nil { return err }
        if cur == nil { return notFound(id) }
        moves, err := loadMoves(ctx, tx, id)
        if err != nil { return err }

        now := m.now()
        ch, err := fn(cur, moves, now)
        if err != nil { return err }
        if ch == nil { out = &change{next: cur}; return nil }
        ch.next.Version = cur.Version + 1
        ch.next.UpdatedAt = now

        raw, err := json.Marshal(ch.next)
        if err != nil { return err }
        _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.Set(ctx, sessionKey(id), raw, m.keep(ch.next))
            for _, rec := range ch.appended {
                b, err := json.Marshal(rec)
                if err != nil { return err }
                pipe.RPush(ctx, movesKey(id), b)
            }
            if ch.drop > 0 {
                pipe.LTrim(ctx, movesKey(id), 0, int64(-(ch.drop + 1)))
            }
            pipe.Expire(ctx, movesKey(id), m.keep(ch.next))
            m.queueIndex(ctx, pipe, ch.next)
            if ch.spawn != nil {
                return m.QueueCreate(ctx, pipe, ch.spawn)
            }
            return nil
        })
        if err != nil { return err }
        out = ch
        return nil
    }, sessionKey(id), movesKey(id))

    if errors.Is(err, redis.TxFailedErr) {
        obslog.L().Warn("session_conflict", zap.String("session_id", id))
        return nil, fmt.Errorf("%w: session %s", arenadto.ErrConflict, id)
    }
    if err != nil { return nil, err }
    if out.op != "" { m.afterCommit(ctx, out) }
    return out, nil
}

func (m *Manager) afterCommit(ctx context.Context, ch *change) {
    s := ch.next
    obslog.L().Info(ch.op,
        zap.String("session_id", s.ID),
        zap.Int64("version", s.Version),
        zap.Int("move_count", s.MoveCount),
        zap.String("status", string(s.Status)),
        zap.String("result", string(s.Result)),
        zap.String("winner_id", s.WinnerID),
    )
    notify.Send(ctx, m.notifier, ch.events...)
    if ch.spawn != nil { m.AfterCreate(ctx, ch.spawn) }
    if !ch.completed { return }
    _ = m.persistIfFinal(ctx, s)
    for _, h := range m.hooks { h(ctx, clone(s)) }
}

// persistIfFinal saves the completed game to the archive if one is attached.
func (m *Manager) persistIfFinal(ctx context.Context, s *Session) error {
    if m.repo == nil || s == nil || s.Status != StatusCompleted { return nil }
    moves, err := m.Moves(ctx, s.ID)
    if err != nil {
        obslog.L().Error("session_archive_error", zap.String("session_id", s.ID), zap.Error(err))
        return err
    }
    g := toArchive(s, moves)
    if pgn, err := archive.BuildPGN(g); err != nil {
        obslog.L().Warn("session_pgn_error", zap.String("session_id", s.ID), zap.Error(err))
    } else {
        g.PGN = pgn
    }
    if err := m.repo.SaveGame(ctx, g); err != nil {
        obslog.L().Error("session_archive_error", zap.String("session_id", s.ID), zap.String("result", string(s.Result)), zap.Error(err))
        return err
    }
    obslog.L().Info("session_archived", zap.String("session_id", s.ID), zap.String("result", string(s.Result)))
    return nil
}

func toArchive(s *Session, moves []MoveRecord) *archive.Game {
    g := &archive.Game{
        SessionID:    s.ID,
        WhiteID:      s.WhiteID,
        WhiteName:    s.WhiteName,
        BlackID:      s.BlackID,
        BlackName:    s.BlackName,
        WhiteRating:  s.WhiteRating,
        BlackRating:  s.BlackRating,
        Rated:        s.Rated,
        TimeControl:  s.TimeControl.String(),
        Source:       string(s.Source),
        TournamentID: s.TournamentID,
        Result:       string(s.Result),
        WinnerColor:  s.WinnerColor,
        Reason:       s.DrawReason,
        InitialFEN:   s.InitialFEN,
        FinalFEN:     s.FEN,
        MovesUCI:     make([]string, 0, len(moves)),
        MovesSAN:     make([]string, 0, len(moves)),
    }
    if s.RatingChange != nil {
        g.WhiteDelta, g.BlackDelta = s.RatingChange.White, s.RatingChange.Black
    }
    for _, rec := range moves {
        g.MovesUCI = append(g.MovesUCI, rec.UCI)
        g.MovesSAN = append(g.MovesSAN, rec.SAN)
    }
    if s.StartedAt != nil { g.StartedAt = *s.StartedAt } else { g.StartedAt = s.CreatedAt }
    if s.CompletedAt != nil { g.EndedAt = *s.CompletedAt } else { g.EndedAt = s.UpdatedAt }
    if d := g.EndedAt.Sub(g.StartedAt); d > 0 { g.Duration = d }
    return g
}

// ApplyMove plays moveText (UCI or SAN) for player. baseFEN is the position
// the player moved from and must match the current one. Running out of time is reported through
// MoveResult.TimedOut, not as an error.
func (m *Manager) ApplyMove(ctx context.Context, id, player, moveText, baseFEN string) (*MoveResult, error) {
    var rec *MoveRecord
    ch, err := m.mutate(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        c, r, err := applyMove(cur, strings.TrimSpace(player), moveText, baseFEN, now)
        rec = r
        return c, err
    })
    if err != nil { return nil, err }
    return &MoveResult{Session: ch.next, Record: rec, TimedOut: ch.timedOut}, nil
}

func (m *Manager) Resign(ctx context.Context, id, player string) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return resign(cur, strings.TrimSpace(player), now)
    })
}

func (m *Manager) OfferDraw(ctx context.Context, id, player string) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return offerDraw(cur, strings.TrimSpace(player), now)
    })
}

func (m *Manager) RespondDraw(ctx context.Context, id, player string, accept bool) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return respondDraw(cur, strings.TrimSpace(player), accept, now)
    })
}

func (m *Manager) RequestTakeback(ctx context.Context, id, player string) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, moves []MoveRecord, now time.Time) (*change, error) {
        return requestTakeback(cur, moves, strings.TrimSpace(player), now)
    })
}

// RespondTakeback answers a pending takeback. Accepting rewinds to the
// position before the requester's last move.
func (m *Manager) RespondTakeback(ctx context.Context, id, player string, accept bool) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, moves []MoveRecord, now time.Time) (*change, error) {
        return respondTakeback(cur, moves, strings.TrimSpace(player), accept, now)
    })
}

// ClaimTimeout completes the session if the side to move has flagged.
// Only the first observation completes it; later calls return false.
func (m *Manager) ClaimTimeout(ctx context.Context, id string) (*Session, bool, error) {
    ch, err := m.mutate(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return claimTimeout(cur, now), nil
    })
    if err != nil { return nil, false, err }
    return ch.next, ch.timedOut, nil
}

// Join seats player in a waiting session and starts it.
func (m *Manager) Join(ctx context.Context, id string, p Player) (*Session, error) {
    hostWhite := m.flip()
    return m.run(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return join(cur, p, now, hostWhite)
    })
}

func (m *Manager) RequestRematch(ctx context.Context, id, player string) (*Session, error) {
    return m.run(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return requestRematch(cur, strings.TrimSpace(player), now)
    })
}

// RespondRematch answers a rematch request. On accept the returned session
// is the new game, with colors swapped.
func (m *Manager) RespondRematch(ctx context.Context, id, player string, accept bool) (*Session, error) {
    newID := m.newID()
    ch, err := m.mutate(ctx, id, func(cur *Session, _ []MoveRecord, now time.Time) (*change, error) {
        return respondRematch(cur, strings.TrimSpace(player), accept, newID, now)
    })
    if err != nil { return nil, err }
    if ch.spawn != nil { return ch.spawn, nil }
    return ch.next, nil
}

func (m *Manager) run(ctx context.Context, id string, fn transition) (*Session, error) {
    ch, err := m.mutate(ctx, id, fn)
    if err != nil { return nil, err }
    return ch.next, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    s, err := loadSession(ctx, m.rdb, strings.TrimSpace(id))
    if err != nil { return nil, err }
    if s == nil { return nil, notFound(id) }
    return s, nil
}

// Moves returns the move records of a session in play order.
func (m *Manager) Moves(ctx context.Context, id string) ([]MoveRecord, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    return loadMoves(ctx, m.rdb, strings.TrimSpace(id))
}

// ActiveByPlayer lists the player's waiting and active sessions, most recent first.
func (m *Manager) ActiveByPlayer(ctx context.Context, player string) ([]*Session, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("session manager not initialized") }
    key := idxUserKey(player)
    ids, err := m.rdb.SMembers(ctx, key).Result()
    if err != nil && err != redis.Nil { return nil, err }
    var out []*Session
    for _, id := range ids {
        s, err := loadSession(ctx, m.rdb, id)
        if err != nil { return nil, err }
        if s == nil {
            _ = m.rdb.SRem(ctx, key, id).Err()
            continue
        }
        if s.Status == StatusCompleted { continue }
        out = append(out, s)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
    return out, nil
}

// ActiveIDs returns the ids in the active-session index.
func (m *Manager) ActiveIDs(ctx context.Context) ([]string, error) {
    ids, err := m.rdb.SMembers(ctx, activeKey).Result()
    if err == redis.Nil { return nil, nil }
    return ids, err
}
