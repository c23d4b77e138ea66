package clock

import (
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/rules"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestAccountDeductsAndAddsIncrement(t *testing.T) {
	s := New(60, 2, t0)
	next, out := Account(s, rules.White, t0.Add(5*time.Second))
	if out.TimedOut {
		t.Fatalf("unexpected timeout")
	}
	if out.SpentMs != 5000 || next.WhiteMs != 57000 || out.RemainingMs != 57000 {
		t.Fatalf("spent=%d white=%d remaining=%d", out.SpentMs, next.WhiteMs, out.RemainingMs)
	}
	if next.BlackMs != 60000 {
		t.Fatalf("black clock changed: %d", next.BlackMs)
	}
	if next.LastMoveAt != t0.Add(5*time.Second).UnixMilli() {
		t.Fatalf("last move not advanced")
	}
}

func TestAccountWithoutElapsedTimeStillAddsIncrement(t *testing.T) {
	s := New(60, 2, t0)
	now := t0.Add(3 * time.Second)
	white, _ := Account(s, rules.White, now)

	// reply inside the same millisecond
	black, out := Account(white, rules.Black, now)
	if out.SpentMs != 0 || out.TimedOut {
		t.Fatalf("outcome=%+v", out)
	}
	if black.BlackMs != 62000 || out.RemainingMs != 62000 {
		t.Fatalf("black=%d remaining=%d want 62000", black.BlackMs, out.RemainingMs)
	}
	if black.WhiteMs != white.WhiteMs || black.LastMoveAt != now.UnixMilli() {
		t.Fatalf("white clock or last move changed: %+v", black)
	}

	// a now behind LastMoveAt charges nothing and does not rewind the clock
	skewed, out := Account(black, rules.White, t0)
	if out.SpentMs != 0 || skewed.WhiteMs != white.WhiteMs+2000 {
		t.Fatalf("skewed=%+v out=%+v", skewed, out)
	}
	if skewed.LastMoveAt != now.UnixMilli() {
		t.Fatalf("last move rewound to %d", skewed.LastMoveAt)
	}
}

func TestFlagDoesNotApplyIncrement(t *testing.T) {
	s := New(10, 5, t0)
	next, out := Account(s, rules.Black, t0.Add(10*time.Second))
	if !out.TimedOut || next.BlackMs != 0 || out.RemainingMs != 0 {
		t.Fatalf("exactly zero must flag: %+v %+v", out, next)
	}
	_, out = Account(s, rules.Black, t0.Add(9999*time.Millisecond))
	if out.TimedOut || out.RemainingMs != 1+5000 {
		t.Fatalf("1ms left must survive with increment: %+v", out)
	}
}

func TestRemainingNeverIncreasesWithoutMove(t *testing.T) {
	s := New(30, 10, t0)
	prev := Remaining(s, rules.White, t0)
	for i := 1; i <= 40; i++ {
		cur := Remaining(s, rules.White, t0.Add(time.Duration(i)*time.Second))
		if cur > prev {
			t.Fatalf("remaining increased at %ds: %d > %d", i, cur, prev)
		}
		prev = cur
	}
	if prev != 0 {
		t.Fatalf("remaining should floor at 0, got %d", prev)
	}
	if Remaining(s, rules.White, t0.Add(-time.Second)) != 30000 {
		t.Fatalf("clock skew must not add time")
	}
}

func TestFlaggedPollPath(t *testing.T) {
	s := New(5, 0, t0)
	if Flagged(s, rules.White, t0.Add(4*time.Second)) {
		t.Fatalf("flagged too early")
	}
	if !Flagged(s, rules.White, t0.Add(5*time.Second)) {
		t.Fatalf("should flag at zero")
	}
	if Flagged(New(0, 0, t0), rules.White, t0.Add(24*time.Hour)) {
		t.Fatalf("unlimited clock never flags")
	}
}

func TestUnlimitedAccount(t *testing.T) {
	s := New(0, 0, t0)
	next, out := Account(s, rules.White, t0.Add(time.Hour))
	if out.TimedOut || next.WhiteMs != 0 {
		t.Fatalf("unlimited: %+v %+v", out, next)
	}
}

func TestRestoreAndSettle(t *testing.T) {
	s := New(60, 0, t0)
	s, _ = Account(s, rules.White, t0.Add(10*time.Second))
	r := Restore(s, rules.White, 60000, t0.Add(20*time.Second))
	if r.WhiteMs != 60000 || r.LastMoveAt != t0.Add(20*time.Second).UnixMilli() {
		t.Fatalf("restore: %+v", r)
	}
	st := Settle(r, rules.White, t0.Add(25*time.Second))
	if st.WhiteMs != 55000 {
		t.Fatalf("settle: %+v", st)
	}
}
