package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Sweep claims timeouts for every indexed active session and returns how
// many were completed. Conflicts are skipped; the next pass sees them again.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, timedOut, err := m.ClaimTimeout(ctx, id)
		switch {
		case err == nil:
			if timedOut {
				n++
			}
		case errors.Is(err, arenadto.ErrNotFound):
			// expired key
			_ = m.rdb.SRem(ctx, activeKey, id).Err()
		case errors.Is(err, arenadto.ErrConflict):
		default:
			obslog.L().Warn("session_sweep_error", zap.String("session_id", id), zap.Error(err))
		}
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	obslog.L().Info("session_sweeper_started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("session_sweeper_stopped")
			return
		case <-ticker.C:
			if n, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				obslog.L().Warn("session_sweep_failed", zap.Error(err))
			} else if n > 0 {
				obslog.L().Info("session_sweep", zap.Int("timed_out", n))
			}
		}
	}
}
