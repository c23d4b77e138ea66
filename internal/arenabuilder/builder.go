package arenabuilder

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/park285/cheese-arena/internal/archive"
    "github.com/park285/cheese-arena/internal/config"
    "github.com/park285/cheese-arena/internal/invite"
    "github.com/park285/cheese-arena/internal/matchmaking"
    "github.com/park285/cheese-arena/internal/msgcat"
    "github.com/park285/cheese-arena/internal/notify"
    "github.com/park285/cheese-arena/internal/obslog"
    "github.com/park285/cheese-arena/internal/session"
    "github.com/park285/cheese-arena/internal/store"
    "github.com/park285/cheese-arena/internal/tournament"
)

// Deps holds every wired component of the arena core.
type Deps struct {
    Redis       *redis.Client
    Archive     archive.Repository
    Notifier    notify.Notifier
    Sessions    *session.Manager
    Matchmaking *matchmaking.Manager
    Invites     *invite.Manager
    Tournaments *tournament.Manager

    sweepEvery time.Duration
}

func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
    if cfg == nil {
        return nil, fmt.Errorf("nil config")
    }

    rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
    if err != nil {
        return nil, fmt.Errorf("init redis: %w", err)
    }

    // Archive: postgres when configured, otherwise in-memory (local dev)
    var repo archive.Repository
    if strings.TrimSpace(cfg.DatabaseURL) != "" {
        pg, err := archive.OpenPostgres(ctx, cfg.DatabaseURL)
        if err != nil {
            _ = rdb.Close()
            return nil, fmt.Errorf("init archive: %w", err)
        }
        repo = pg
    } else {
        obslog.L().Warn("archive_memory", zap.String("reason", "DATABASE_URL not set"))
        repo = archive.NewMemoryRepository()
    }

    catalog, err := msgcat.New(cfg.MessagesLocale, cfg.MessagesDir)
    if err != nil {
        _ = repo.Close()
        _ = rdb.Close()
        return nil, fmt.Errorf("init messages: %w", err)
    }
    sinks := []notify.Notifier{notify.NewRedisPublisher(rdb)}
    if cfg.NotifyWebhookURL != "" {
        sinks = append(sinks, notify.NewWebhook(cfg.NotifyWebhookURL, notify.WithBearerToken(cfg.NotifyWebhookToken)))
    }
    notifier := notify.NewDispatcher(catalog, sinks...)

    sessions := session.NewManager(rdb,
        session.WithNotifier(notifier),
        session.WithTTL(cfg.SessionTTL),
    )
    sessions.AttachArchive(repo)

    mm := matchmaking.NewManager(rdb, sessions,
        matchmaking.WithNotifier(notifier),
        matchmaking.WithAllowedTimeControls(cfg.Allows),
        matchmaking.WithRated(cfg.RatedMatchmaking),
        matchmaking.WithTicketTTL(cfg.TicketTTL),
    )
    // registers its completion hook on sessions
    tm := tournament.NewManager(rdb, sessions, tournament.WithNotifier(notifier))

    return &Deps{
        Redis:       rdb,
        Archive:     repo,
        Notifier:    notifier,
        Sessions:    sessions,
        Matchmaking: mm,
        Invites:     invite.NewManager(sessions),
        Tournaments: tm,
        sweepEvery:  cfg.SweepInterval,
    }, nil
}

// Run drives the background loops until ctx is done: the timeout sweeper and
// a tournament reconcile pass on the same cadence.
func (d *Deps) Run(ctx context.Context) error {
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        d.Sessions.RunSweeper(gctx, d.sweepEvery)
        return nil
    })
    g.Go(func() error {
        every := d.sweepEvery
        if every <= 0 { every = time.Second }
        // 세션 훅이 충돌로 놓친 결과를 주기적으로 반영
        ticker := time.NewTicker(every * 5)
        defer ticker.Stop()
        for {
            select {
            case <-gctx.Done():
                return nil
            case <-ticker.C:
                if _, err := d.Tournaments.ProgressActive(gctx); err != nil && gctx.Err() == nil {
                    obslog.L().Warn("tournament_reconcile_failed", zap.Error(err))
                }
            }
        }
    })
    return g.Wait()
}

func (d *Deps) Close() error {
    var first error
    if d.Archive != nil {
        if err := d.Archive.Close(); err != nil { first = err }
    }
    if d.Redis != nil {
        if err := d.Redis.Close(); err != nil && first == nil { first = err }
    }
    return first
}
