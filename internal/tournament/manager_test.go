package tournament

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type recorder struct {
	mu     sync.Mutex
	events []arenadto.Event
}

func (r *recorder) Notify(_ context.Context, ev arenadto.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(kind arenadto.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	rdb      *redis.Client
	sessions *session.Manager
	m        *Manager
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rec := &recorder{}
	sessions := session.NewManager(rdb,
		session.WithNotifier(rec),
		session.WithCoinFlip(func() bool { return true }),
	)
	m := NewManager(rdb, sessions, WithNotifier(rec), WithShuffler(keepOrder))
	return &fixture{rdb: rdb, sessions: sessions, m: m, rec: rec}
}

func (f *fixture) open(t *testing.T, format Format, players ...string) *Tournament {
	t.Helper()
	ctx := context.Background()
	tr, err := f.m.Create(ctx, CreateRequest{
		Name:        "friday knockout",
		OrganizerID: "org",
		Format:      format,
		TimeControl: session.TimeControl{Minutes: 5, Increment: 3},
		Rated:       true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, p := range players {
		if _, err := f.m.Join(ctx, tr.ID, JoinRequest{PlayerID: p, Name: p, Rating: 1200}); err != nil {
			t.Fatalf("Join %s: %v", p, err)
		}
	}
	return tr
}

func matchSession(t *testing.T, tr *Tournament, round, number int) string {
	t.Helper()
	for _, m := range tr.Matches {
		if m.Round == round && m.Number == number {
			if m.SessionID == "" {
				t.Fatalf("match %d.%d has no session", round, number)
			}
			return m.SessionID
		}
	}
	t.Fatalf("match %d.%d not found", round, number)
	return ""
}

func TestKnockoutRunsOnGameResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t, FormatSingleElimination, "p1", "p2", "p3", "p4")

	if _, err := f.m.Start(ctx, tr.ID, "p1"); !errors.Is(err, arenadto.ErrNotOrganizer) {
		t.Fatalf("start by player err=%v", err)
	}
	tr, err := f.m.Start(ctx, tr.ID, "org")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tr.Status != StatusActive || tr.CurrentRound != 1 || tr.TotalRounds != 2 {
		t.Fatalf("started %+v", tr)
	}

	g1 := matchSession(t, tr, 1, 1)
	s1, err := f.sessions.Get(ctx, g1)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if s1.Source != session.SourceTournament || s1.TournamentID != tr.ID || s1.WhiteID != "p1" || s1.BlackID != "p2" || !s1.Rated {
		t.Fatalf("session %+v", s1)
	}
	if s1.TimeControl.Minutes != 5 || s1.TimeControl.Increment != 3 {
		t.Fatalf("time control %+v", s1.TimeControl)
	}
	if n := f.rec.count(arenadto.EventTournamentRound); n != 4 {
		t.Fatalf("round events=%d", n)
	}

	if _, err := f.sessions.Resign(ctx, g1, "p2"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	tr, _ = f.m.Get(ctx, tr.ID)
	if m := tr.RoundMatches(1)[0]; m.Status != MatchCompleted || m.WinnerID != "p1" {
		t.Fatalf("match 1 %+v", m)
	}
	if tr.CurrentRound != 1 {
		t.Fatalf("advanced with a game outstanding")
	}

	if _, err := f.sessions.Resign(ctx, matchSession(t, tr, 1, 2), "p3"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	tr, _ = f.m.Get(ctx, tr.ID)
	if tr.CurrentRound != 2 {
		t.Fatalf("round=%d", tr.CurrentRound)
	}
	final := tr.RoundMatches(2)[0]
	if final.Player1 != "p1" || final.Player2 != "p4" || final.Status != MatchInProgress {
		t.Fatalf("final %+v", final)
	}

	// a drawn final waits for the organizer
	if _, err := f.sessions.OfferDraw(ctx, final.SessionID, "p1"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if _, err := f.sessions.RespondDraw(ctx, final.SessionID, "p4", true); err != nil {
		t.Fatalf("RespondDraw: %v", err)
	}
	tr, _ = f.m.Get(ctx, tr.ID)
	if m := tr.RoundMatches(2)[0]; !m.NeedsDecision || tr.Status != StatusActive {
		t.Fatalf("final %+v status=%s", m, tr.Status)
	}

	tr, err = f.m.Decide(ctx, tr.ID, "org", 2, 1, "p4")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if tr.Status != StatusCompleted || tr.WinnerID != "p4" {
		t.Fatalf("status=%s winner=%s", tr.Status, tr.WinnerID)
	}
	if n := f.rec.count(arenadto.EventTournamentCompleted); n != 4 {
		t.Fatalf("completed events=%d", n)
	}
	if ok, _ := f.rdb.SIsMember(ctx, activeKey, tr.ID).Result(); ok {
		t.Fatalf("completed tournament still indexed")
	}

	again, err := f.m.Progress(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if again.Version != tr.Version {
		t.Fatalf("idle progress wrote a new version %d -> %d", tr.Version, again.Version)
	}

	st, err := f.m.Standings(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if st[0].PlayerID != "p4" || st[0].Placement != 1 || st[1].PlayerID != "p1" || st[1].Placement != 2 {
		t.Fatalf("standings %+v", st)
	}
}

func TestProgressRecoversMissedResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t, FormatRoundRobin, "p1", "p2")
	tr, err := f.m.Start(ctx, tr.ID, "org")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	g := matchSession(t, tr, 1, 1)

	// a session manager without the tournament hook finishes the game
	bare := session.NewManager(f.rdb)
	if _, err := bare.Resign(ctx, g, "p1"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	tr, _ = f.m.Get(ctx, tr.ID)
	if tr.Status != StatusActive {
		t.Fatalf("status=%s before reconcile", tr.Status)
	}

	n, err := f.m.ProgressActive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ProgressActive n=%d err=%v", n, err)
	}
	tr, _ = f.m.Get(ctx, tr.ID)
	if tr.Status != StatusCompleted || tr.WinnerID != "p2" {
		t.Fatalf("status=%s winner=%s", tr.Status, tr.WinnerID)
	}
	if ok, _ := f.rdb.SIsMember(ctx, activeKey, tr.ID).Result(); ok {
		t.Fatalf("still indexed")
	}
}

func TestRegistrationRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t, FormatSwiss, "p1")

	if _, err := f.m.Join(ctx, tr.ID, JoinRequest{PlayerID: "p1"}); !errors.Is(err, arenadto.ErrInvalidTransition) {
		t.Fatalf("duplicate join err=%v", err)
	}
	if _, err := f.m.Start(ctx, tr.ID, "org"); !errors.Is(err, arenadto.ErrInsufficientParticipants) {
		t.Fatalf("start with one err=%v", err)
	}
	if _, err := f.m.Join(ctx, tr.ID, JoinRequest{PlayerID: "p2"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	tr, err := f.m.Leave(ctx, tr.ID, "p2")
	if err != nil || len(tr.Participants) != 1 {
		t.Fatalf("Leave err=%v participants=%d", err, len(tr.Participants))
	}
	if _, err := f.m.Get(ctx, "missing"); !errors.Is(err, arenadto.ErrNotFound) {
		t.Fatalf("Get missing err=%v", err)
	}
	if _, err := f.m.Create(ctx, CreateRequest{Name: "x", OrganizerID: "org", Format: "ladder"}); !errors.Is(err, arenadto.ErrInvalidArgs) {
		t.Fatalf("bad format err=%v", err)
	}
}

func TestExpiredGameWaitsForOrganizer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.open(t, FormatRoundRobin, "p1", "p2")
	tr, err := f.m.Start(ctx, tr.ID, "org")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sid := matchSession(t, tr, 1, 1)
	ttl, err := f.rdb.TTL(ctx, "arena:session:"+sid).Result()
	if err != nil || ttl <= 24*time.Hour {
		t.Fatalf("tournament game ttl=%v err=%v", ttl, err)
	}

	// the game disappears before anyone finishes it
	if err := f.rdb.Del(ctx, "arena:session:"+sid).Err(); err != nil {
		t.Fatalf("Del: %v", err)
	}
	tr, err = f.m.Progress(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	m := tr.RoundMatches(1)[0]
	if !m.NeedsDecision || !m.SessionLost || m.Status != MatchInProgress {
		t.Fatalf("match %+v", m)
	}
	if again, err := f.m.Progress(ctx, tr.ID); err != nil || again.Version != tr.Version {
		t.Fatalf("second progress changed the record: %v", err)
	}

	tr, err = f.m.Decide(ctx, tr.ID, "org", 1, 1, "")
	if err != nil {
		t.Fatalf("Decide draw: %v", err)
	}
	m = tr.RoundMatches(1)[0]
	if m.Status != MatchCompleted || !m.Draw || m.WinnerID != "" {
		t.Fatalf("decided match %+v", m)
	}
	if tr.Status != StatusCompleted {
		t.Fatalf("status=%s", tr.Status)
	}
}
