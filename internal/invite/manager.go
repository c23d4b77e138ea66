package invite

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    gonanoid "github.com/matoous/go-nanoid/v2"
    "go.uber.org/zap"

    "github.com/park285/cheese-arena/internal/obslog"
    "github.com/park285/cheese-arena/internal/session"
    "github.com/park285/cheese-arena/pkg/arenadto"
)

var (
    ErrSelfChallenge    = fmt.Errorf("%w: cannot challenge yourself", arenadto.ErrInvalidArgs)
    ErrAlreadyPending   = fmt.Errorf("%w: target already has a pending challenge from you", arenadto.ErrInvalidTransition)
    ErrNotPending       = fmt.Errorf("%w: challenge is no longer pending", arenadto.ErrInvalidTransition)
)

// Starter creates the session of an accepted challenge.
type Starter interface {
    Create(ctx context.Context, ns session.NewSession) (*session.Session, error)
}

type Manager struct {
    mu      sync.Mutex
    byID    map[string]*Challenge
    starter Starter
    ttl     time.Duration
    now     func() time.Time
}

type Option func(*Manager)

// WithTTL sets how long a challenge stays open.
func WithTTL(d time.Duration) Option { return func(m *Manager) { if d > 0 { m.ttl = d } } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { if now != nil { m.now = now } } }

func NewManager(starter Starter, opts ...Option) *Manager {
    m := &Manager{byID: make(map[string]*Challenge), starter: starter, ttl: 5 * time.Minute, now: time.Now}
    for _, o := range opts { o(m) }
    return m
}

func (m *Manager) Create(ctx context.Context, req Request) (*Challenge, error) {
    req.ChallengerID, req.TargetID = strings.TrimSpace(req.ChallengerID), strings.TrimSpace(req.TargetID)
    if req.ChallengerID == "" || req.TargetID == "" {
        return nil, fmt.Errorf("%w: challenger and target are required", arenadto.ErrInvalidArgs)
    }
    if req.ChallengerID == req.TargetID { return nil, ErrSelfChallenge }
    if req.TimeControl.Minutes < 0 || req.TimeControl.Increment < 0 {
        return nil, fmt.Errorf("%w: negative time control", arenadto.ErrInvalidArgs)
    }
    id, err := gonanoid.New()
    if err != nil { return nil, fmt.Errorf("failed to generate challenge id: %w", err) }
    color := req.Color
    if color == "" { color = ColorRandom }

    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    m.expireLocked(now)
    for _, c := range m.byID {
        if c.Status == StatusPending && c.ChallengerID == req.ChallengerID && c.TargetID == req.TargetID {
            return nil, ErrAlreadyPending
        }
    }
    ch := &Challenge{
        ID:             id,
        ChallengerID:   req.ChallengerID,
        ChallengerName: req.ChallengerName,
        TargetID:       req.TargetID,
        Color:          color,
        TimeControl:    req.TimeControl,
        Rated:          req.Rated,
        CreatedAt:      now,
        ExpiresAt:      now.Add(m.ttl),
        Status:         StatusPending,
    }
    m.byID[id] = ch
    obslog.L().Info("invite_create", zap.String("challenge_id", id), zap.String("challenger_id", ch.ChallengerID), zap.String("target_id", ch.TargetID))
    cp := *ch
    return &cp, nil
}

// Accept starts the session. Only the target may accept.
func (m *Manager) Accept(ctx context.Context, id, targetID string, target session.Player) (*Challenge, *session.Session, error) {
    m.mu.Lock()
    ch, err := m.pendingLocked(id)
    if err != nil { m.mu.Unlock(); return nil, nil, err }
    if ch.TargetID != strings.TrimSpace(targetID) {
        m.mu.Unlock()
        return nil, nil, fmt.Errorf("%w: %s is not the challenged player", arenadto.ErrNotAPlayer, targetID)
    }
    // 세션 생성 동안 다른 응답이 끼어들지 않도록 먼저 상태를 바꿔둔다
    ch.Status = StatusAccepted
    snapshot := *ch
    m.mu.Unlock()

    target.ID = snapshot.TargetID
    colors := session.ColorRandom
    switch snapshot.Color {
    case ColorWhite:
        colors = session.FirstWhite
    case ColorBlack:
        colors = session.FirstBlack
    }
    s, err := m.starter.Create(ctx, session.NewSession{
        First:       session.Player{ID: snapshot.ChallengerID, Name: snapshot.ChallengerName},
        Second:      target,
        Colors:      colors,
        TimeControl: snapshot.TimeControl,
        Rated:       snapshot.Rated,
        Source:      session.SourceInvite,
    })

    m.mu.Lock()
    defer m.mu.Unlock()
    if err != nil {
        ch.Status = StatusPending
        obslog.L().Warn("invite_accept_error", zap.String("challenge_id", id), zap.Error(err))
        return nil, nil, err
    }
    ch.SessionID = s.ID
    obslog.L().Info("invite_accept", zap.String("challenge_id", id), zap.String("session_id", s.ID))
    cp := *ch
    return &cp, s, nil
}

func (m *Manager) Decline(ctx context.Context, id, targetID string) (*Challenge, error) {
    return m.resolve(id, func(c *Challenge) error {
        if c.TargetID != strings.TrimSpace(targetID) {
            return fmt.Errorf("%w: %s is not the challenged player", arenadto.ErrNotAPlayer, targetID)
        }
        c.Status = StatusDeclined
        return nil
    })
}

// Cancel withdraws a challenge. Only the challenger may cancel.
func (m *Manager) Cancel(ctx context.Context, id, challengerID string) (*Challenge, error) {
    return m.resolve(id, func(c *Challenge) error {
        if c.ChallengerID != strings.TrimSpace(challengerID) {
            return fmt.Errorf("%w: %s did not issue this challenge", arenadto.ErrNotAPlayer, challengerID)
        }
        c.Status = StatusCancelled
        return nil
    })
}

func (m *Manager) resolve(id string, fn func(c *Challenge) error) (*Challenge, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    ch, err := m.pendingLocked(id)
    if err != nil { return nil, err }
    if err := fn(ch); err != nil { return nil, err }
    obslog.L().Info("invite_resolve", zap.String("challenge_id", id), zap.String("status", string(ch.Status)))
    cp := *ch
    return &cp, nil
}

// Pending lists open challenges addressed to targetID, oldest first.
func (m *Manager) Pending(targetID string) []*Challenge {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.expireLocked(m.now())
    var out []*Challenge
    for _, c := range m.byID {
        if c.Status == StatusPending && c.TargetID == targetID {
            cp := *c
            out = append(out, &cp)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
    return out
}

func (m *Manager) Get(id string) (*Challenge, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.expireLocked(m.now())
    c, ok := m.byID[id]
    if !ok { return nil, fmt.Errorf("%w: challenge %s", arenadto.ErrNotFound, id) }
    cp := *c
    return &cp, nil
}

func (m *Manager) pendingLocked(id string) (*Challenge, error) {
    m.expireLocked(m.now())
    c, ok := m.byID[strings.TrimSpace(id)]
    if !ok { return nil, fmt.Errorf("%w: challenge %s", arenadto.ErrNotFound, id) }
    if c.Status != StatusPending { return nil, ErrNotPending }
    return c, nil
}

// expireLocked marks overdue challenges and drops resolved ones older than a ttl.
func (m *Manager) expireLocked(now time.Time) {
    for id, c := range m.byID {
        if c.Status == StatusPending && !now.Before(c.ExpiresAt) {
            c.Status = StatusExpired
        }
        if c.Status != StatusPending && now.Sub(c.ExpiresAt) > m.ttl {
            delete(m.byID, id)
        }
    }
}
