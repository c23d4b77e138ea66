package notify

import (
	"context"
	"time"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers one event to one recipient.
type Notifier interface {
	Notify(ctx context.Context, ev arenadto.Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, ev arenadto.Event) error

func (f Func) Notify(ctx context.Context, ev arenadto.Event) error { return f(ctx, ev) }

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, arenadto.Event) error { return nil }

// Dispatcher renders event text from the catalog and fans the event out to
// every sink concurrently.
type Dispatcher struct {
	catalog *msgcat.Catalog
	sinks   []Notifier
	now     func() time.Time
}

func NewDispatcher(catalog *msgcat.Catalog, sinks ...Notifier) *Dispatcher {
	return &Dispatcher{catalog: catalog, sinks: sinks, now: time.Now}
}

// Notify returns the first sink error; the other sinks still run.
func (d *Dispatcher) Notify(ctx context.Context, ev arenadto.Event) error {
	if d == nil || len(d.sinks) == 0 {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if ev.Text == "" && d.catalog != nil {
		if txt, err := d.catalog.Event(string(ev.Kind), ev); err == nil {
			ev.Text = txt
		} else {
			obslog.L().Debug("notify_render_skip", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range d.sinks {
		g.Go(func() error { return s.Notify(gctx, ev) })
	}
	return g.Wait()
}

// Send delivers events one by one and only logs failures. Managers call it
// after a commit, when a delivery problem must not undo the transition.
func Send(ctx context.Context, n Notifier, evs ...arenadto.Event) {
	if n == nil {
		return
	}
	for _, ev := range evs {
		if ev.Recipient == "" {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			obslog.L().Warn("notify_error",
				zap.String("kind", string(ev.Kind)),
				zap.String("recipient", ev.Recipient),
				zap.String("session_id", ev.SessionID),
				zap.Error(err),
			)
		}
	}
}
