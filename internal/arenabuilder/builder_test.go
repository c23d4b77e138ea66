package arenabuilder

import (
    "context"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"

    "github.com/park285/cheese-arena/internal/config"
    "github.com/park285/cheese-arena/internal/matchmaking"
    "github.com/park285/cheese-arena/internal/session"
)

func TestNewWiresMatchmakingToSessions(t *testing.T) {
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    defer mr.Close()

    t.Setenv("REDIS_URL", "redis://"+mr.Addr()+"/0")
    t.Setenv("DATABASE_URL", "")
    cfg, err := config.Load()
    if err != nil { t.Fatalf("config: %v", err) }
    cfg.SweepInterval = 10 * time.Millisecond

    ctx := context.Background()
    d, err := New(ctx, cfg)
    if err != nil { t.Fatalf("New: %v", err) }
    defer func() { _ = d.Close() }()

    if _, err := d.Matchmaking.Join(ctx, matchmaking.JoinRequest{PlayerID: "u1", TimeControl: 5, Increment: 0}); err != nil {
        t.Fatalf("join u1: %v", err)
    }
    res, err := d.Matchmaking.Join(ctx, matchmaking.JoinRequest{PlayerID: "u2", TimeControl: 5, Increment: 0})
    if err != nil { t.Fatalf("join u2: %v", err) }
    if !res.Matched || res.Session == nil {
        t.Fatalf("expected a match, got %+v", res)
    }
    s, err := d.Sessions.Get(ctx, res.Session.ID)
    if err != nil { t.Fatalf("get session: %v", err) }
    if s.Status != session.StatusActive || !s.Rated {
        t.Fatalf("session %+v", s)
    }

    if _, err := d.Matchmaking.Join(ctx, matchmaking.JoinRequest{PlayerID: "u3", TimeControl: 7, Increment: 0}); err == nil {
        t.Fatalf("7+0 is not in the default allowed list")
    }

    // resign and make sure the archive got the game
    if _, err := d.Sessions.Resign(ctx, s.ID, s.WhiteID); err != nil { t.Fatalf("resign: %v", err) }
    g, err := d.Archive.GetGame(ctx, s.ID)
    if err != nil || g == nil { t.Fatalf("archived game=%v err=%v", g, err) }

    rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
    defer cancel()
    if err := d.Run(rctx); err != nil {
        t.Fatalf("Run returned %v", err)
    }
}
