package tournament

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-arena/internal/notify"
    "github.com/park285/cheese-arena/internal/obslog"
    "github.com/park285/cheese-arena/internal/session"
    "github.com/park285/cheese-arena/pkg/arenadto"
)

const activeKey = "arena:tournaments:active"

func tournamentKey(id string) string { return "arena:tournament:" + strings.TrimSpace(id) }

type Manager struct {
    rdb      *redis.Client
    sessions *session.Manager
    notifier notify.Notifier
    shuffle  Shuffler
    ttl      time.Duration
    now      func() time.Time
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option { return func(m *Manager) { if n != nil { m.notifier = n } } }

// WithShuffler replaces the random seeding, mainly for tests.
func WithShuffler(s Shuffler) Option { return func(m *Manager) { if s != nil { m.shuffle = s } } }

// WithTTL sets how long a tournament record lives after its last write.
func WithTTL(d time.Duration) Option { return func(m *Manager) { if d > 0 { m.ttl = d } } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { if now != nil { m.now = now } } }

// NewManager returns a manager and registers it for session completions so
// finished tournament games advance their bracket.
func NewManager(rdb *redis.Client, sessions *session.Manager, opts ...Option) *Manager {
    m := &Manager{
        rdb:      rdb,
        sessions: sessions,
        notifier: notify.Nop{},
        ttl:      30 * 24 * time.Hour,
        now:      time.Now,
    }
    for _, o := range opts { o(m) }
    if sessions != nil {
        sessions.OnComplete(m.RecordResult)
    }
    return m
}

type getter interface {
    Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, g getter, id string) (*Tournament, error) {
    raw, err := g.Get(ctx, tournamentKey(id)).Bytes()
    if errors.Is(err, redis.Nil) { return nil, fmt.Errorf("%w: tournament %s", arenadto.ErrNotFound, id) }
    if err != nil { return nil, err }
    var t Tournament
    if err := json.Unmarshal(raw, &t); err != nil { return nil, fmt.Errorf("decode tournament %s: %w", id, err) }
    return &t, nil
}

// Create stores a new upcoming tournament.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Tournament, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("tournament manager not initialized") }
    id := uuid.NewString()
    t, err := newTournament(req, id, m.now())
    if err != nil { return nil, err }
    t.Version = 1
    raw, err := json.Marshal(t)
    if err != nil { return nil, err }
    if _, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        pipe.Set(ctx, tournamentKey(id), raw, m.ttl)
        pipe.SAdd(ctx, activeKey, id)
        return nil
    }); err != nil {
        return nil, fmt.Errorf("store tournament: %w", err)
    }
    obslog.L().Info("tournament_created",
        zap.String("tournament_id", id),
        zap.String("format", string(t.Format)),
        zap.String("organizer_id", t.OrganizerID),
    )
    return t, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Tournament, error) {
    if m == nil || m.rdb == nil { return nil, fmt.Errorf("tournament manager not initialized") }
    return load(ctx, m.rdb, strings.TrimSpace(id))
}

// Standings returns the current points table.
func (m *Manager) Standings(ctx context.Context, id string) ([]Standing, error) {
    t, err := m.Get(ctx, id)
    if err != nil { return nil, err }
    return Standings(t), nil
}

func (m *Manager) Join(ctx context.Context, id string, req JoinRequest) (*Tournament, error) {
    return m.update(ctx, id, "tournament_joined", func(t *Tournament, now time.Time) (*step, error) {
        if err := join(t, req, now); err != nil { return nil, err }
        return &step{}, nil
    })
}

func (m *Manager) Leave(ctx context.Context, id, playerID string) (*Tournament, error) {
    return m.update(ctx, id, "tournament_left", func(t *Tournament, _ time.Time) (*step, error) {
        if err := leave(t, strings.TrimSpace(playerID)); err != nil { return nil, err }
        return &step{}, nil
    })
}

// Start seeds the participants and creates the round 1 games in the same
// transaction as the tournament update.
func (m *Manager) Start(ctx context.Context, id, organizerID string) (*Tournament, error) {
    return m.update(ctx, id, "tournament_started", func(t *Tournament, now time.Time) (*step, error) {
        playable, err := start(t, strings.TrimSpace(organizerID), m.shuffle, now)
        if err != nil { return nil, err }
        return &step{round: true, playable: playable}, nil
    })
}

// Decide settles a match waiting on the organizer: a drawn knockout game or
// one whose session expired. An empty winnerID scores a draw, which only
// round robin and Swiss allow.
func (m *Manager) Decide(ctx context.Context, id, organizerID string, round, number int, winnerID string) (*Tournament, error) {
    return m.update(ctx, id, "tournament_decided", func(t *Tournament, now time.Time) (*step, error) {
        if err := decide(t, strings.TrimSpace(organizerID), round, number, strings.TrimSpace(winnerID)); err != nil {
            return nil, err
        }
        return progressed(t, now, true), nil
    })
}

// Progress folds finished games into the tournament and opens the next
// round when the current one is done. Calling it with nothing new is a no-op.
func (m *Manager) Progress(ctx context.Context, id string) (*Tournament, error) {
    return m.update(ctx, id, "tournament_progressed", func(t *Tournament, now time.Time) (*step, error) {
        changed := false
        for _, mt := range t.Matches {
            if mt.Status != MatchInProgress || mt.NeedsDecision || mt.SessionID == "" { continue }
            s, err := m.sessions.Get(ctx, mt.SessionID)
            if errors.Is(err, arenadto.ErrNotFound) {
                if lost(t, mt.SessionID) {
                    obslog.L().Warn("tournament_session_lost",
                        zap.String("tournament_id", t.ID),
                        zap.String("session_id", mt.SessionID),
                        zap.Int("round", mt.Round),
                        zap.Int("match", mt.Number),
                    )
                    changed = true
                }
                continue
            }
            if err != nil { return nil, err }
            if s.Status != session.StatusCompleted { continue }
            if record(t, s.ID, s.WinnerID) {
                changed = true
            }
        }
        return progressed(t, now, changed), nil
    })
}

// ProgressActive runs Progress for every indexed tournament and returns how
// many were checked. Finished or expired ones leave the index.
func (m *Manager) ProgressActive(ctx context.Context) (int, error) {
    ids, err := m.rdb.SMembers(ctx, activeKey).Result()
    if err != nil { return 0, err }
    sort.Strings(ids)
    n := 0
    for _, id := range ids {
        if ctx.Err() != nil { return n, ctx.Err() }
        t, err := m.Progress(ctx, id)
        switch {
        case errors.Is(err, arenadto.ErrNotFound):
            _ = m.rdb.SRem(ctx, activeKey, id).Err()
        case errors.Is(err, arenadto.ErrConflict):
        case err != nil:
            obslog.L().Warn("tournament_progress_error", zap.String("tournament_id", id), zap.Error(err))
        default:
            n++
            if t.Status == StatusCompleted {
                _ = m.rdb.SRem(ctx, activeKey, id).Err()
            }
        }
    }
    return n, nil
}

// RecordResult is the session completion hook. It folds the finished game
// into its tournament; non-tournament sessions are ignored.
func (m *Manager) RecordResult(ctx context.Context, s *session.Session) {
    if s == nil || s.TournamentID == "" { return }
    _, err := m.Progress(ctx, s.TournamentID)
    if errors.Is(err, arenadto.ErrConflict) {
        // the competing writer may have started before this game finished
        _, err = m.Progress(ctx, s.TournamentID)
    }
    if err != nil {
        obslog.L().Warn("tournament_progress_error",
            zap.String("tournament_id", s.TournamentID),
            zap.String("session_id", s.ID),
            zap.Error(err),
        )
    }
}

type step struct {
    round     bool
    completed bool
    playable  []int
}

// progressed advances t and reports the step, or nil when neither a result
// was recorded nor the tournament moved.
func progressed(t *Tournament, now time.Time, changed bool) *step {
    adv := advance(t, now)
    if !changed && !adv.newRound && !adv.completed { return nil }
    return &step{round: adv.newRound, completed: adv.completed, playable: adv.playable}
}

type mutation func(t *Tournament, now time.Time) (*step, error)

// update runs fn under WATCH on the tournament record. Game sessions for
// newly playable matches are written in the same MULTI.
func (m *Manager) update(ctx context.Context, id, op string, fn mutation) (*Tournament, error) {
    if m == nil || m.rdb == nil || m.sessions == nil { return nil, fmt.Errorf("tournament manager not initialized") }
    id = strings.TrimSpace(id)
    if id == "" { return nil, fmt.Errorf("%w: tournament id is required", arenadto.ErrInvalidArgs) }

    var (
        out     *Tournament
        st      *step
        created []*session.Session
    )
    err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
        cur, err := load(ctx, tx, id)
        if err != nil { return err }
        next := clone(cur)
        now := m.now()
        s, err := fn(next, now)
        if err != nil { return err }
        if s == nil {
            out, st = cur, nil
            return nil
        }

        created = created[:0]
        for _, i := range s.playable {
            sess, err := m.prepare(next, &next.Matches[i])
            if err != nil { return err }
            created = append(created, sess)
        }
        next.Version = cur.Version + 1
        next.UpdatedAt = now
        raw, err := json.Marshal(next)
        if err != nil { return err }
        _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.Set(ctx, tournamentKey(id), raw, m.ttl)
            if next.Status == StatusCompleted {
                pipe.SRem(ctx, activeKey, id)
            }
            for _, sess := range created {
                if err := m.sessions.QueueCreate(ctx, pipe, sess); err != nil { return err }
            }
            return nil
        })
        if err != nil { return err }
        out, st = next, s
        return nil
    }, tournamentKey(id))

    if errors.Is(err, redis.TxFailedErr) {
        obslog.L().Warn("tournament_conflict", zap.String("tournament_id", id))
        return nil, fmt.Errorf("%w: tournament %s", arenadto.ErrConflict, id)
    }
    if err != nil { return nil, err }
    if st != nil {
        m.afterCommit(ctx, op, out, st, created)
    }
    return out, nil
}

func (m *Manager) prepare(t *Tournament, mt *Match) (*session.Session, error) {
    p1, p2 := t.participant(mt.Player1), t.participant(mt.Player2)
    if p1 == nil || p2 == nil { return nil, fmt.Errorf("match %d.%d has unknown players", mt.Round, mt.Number) }
    sess, err := m.sessions.Prepare(session.NewSession{
        First:           session.Player{ID: p1.PlayerID, Name: p1.Name, Rating: p1.Rating},
        Second:          session.Player{ID: p2.PlayerID, Name: p2.Name, Rating: p2.Rating},
        Colors:          session.ColorRandom,
        TimeControl:     t.TimeControl,
        Rated:           t.Rated,
        Source:          session.SourceTournament,
        TournamentID:    t.ID,
        TournamentMatch: mt.Number,
        Keep:            m.ttl,
    })
    if err != nil { return nil, err }
    mt.SessionID = sess.ID
    mt.Status = MatchInProgress
    return sess, nil
}

func (m *Manager) afterCommit(ctx context.Context, op string, t *Tournament, st *step, created []*session.Session) {
    obslog.L().Info(op,
        zap.String("tournament_id", t.ID),
        zap.Int64("version", t.Version),
        zap.String("status", string(t.Status)),
        zap.Int("round", t.CurrentRound),
        zap.Int("games", len(created)),
    )
    for _, s := range created {
        m.sessions.AfterCreate(ctx, s)
    }
    now := m.now()
    var evs []arenadto.Event
    if st.round {
        for _, mt := range t.RoundMatches(t.CurrentRound) {
            for _, p := range []string{mt.Player1, mt.Player2} {
                if p == "" { continue }
                evs = append(evs, arenadto.Event{
                    Kind:         arenadto.EventTournamentRound,
                    Recipient:    p,
                    TournamentID: t.ID,
                    SessionID:    mt.SessionID,
                    OpponentID:   other(&mt, p),
                    Round:        t.CurrentRound,
                    At:           now,
                })
            }
        }
    }
    if st.completed {
        for _, p := range t.Participants {
            evs = append(evs, arenadto.Event{
                Kind:         arenadto.EventTournamentCompleted,
                Recipient:    p.PlayerID,
                TournamentID: t.ID,
                WinnerID:     t.WinnerID,
                Round:        t.CurrentRound,
                At:           now,
            })
        }
    }
    notify.Send(ctx, m.notifier, evs...)
}

func other(mt *Match, p string) string {
    if mt.Player1 == p { return mt.Player2 }
    return mt.Player1
}
