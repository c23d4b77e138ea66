// Package clock accounts per-side thinking time for a game. All functions
// are pure: they take a State and return a new one.
package clock

import (
	"time"

	"github.com/park285/cheese-arena/internal/rules"
)

// State is the persisted clock of one game. Times are milliseconds;
// LastMoveAt is a unix millisecond timestamp of the last accounted instant.
type State struct {
	BaseMs      int64 `json:"base_ms"`
	IncrementMs int64 `json:"increment_ms"`
	WhiteMs     int64 `json:"white_ms"`
	BlackMs     int64 `json:"black_ms"`
	LastMoveAt  int64 `json:"last_move_at"`
}

// Outcome is the result of accounting one move.
type Outcome struct {
	// SpentMs is the elapsed thinking time charged to the mover.
	SpentMs int64
	// RemainingMs is the mover's time after the move (increment included).
	RemainingMs int64
	// TimedOut is set when the mover flagged. The increment is not applied.
	TimedOut bool
}

// New starts a clock with both sides at base seconds. A zero base means
// the game is untimed.
func New(baseSeconds, incrementSeconds int, start time.Time) State {
	base := int64(baseSeconds) * 1000
	return State{
		BaseMs:      base,
		IncrementMs: int64(incrementSeconds) * 1000,
		WhiteMs:     base,
		BlackMs:     base,
		LastMoveAt:  start.UnixMilli(),
	}
}

// Unlimited reports whether the clock never flags.
func (s State) Unlimited() bool { return s.BaseMs <= 0 }

func (s State) remaining(side rules.Color) int64 {
	if side == rules.White {
		return s.WhiteMs
	}
	return s.BlackMs
}

func (s *State) set(side rules.Color, ms int64) {
	if side == rules.White {
		s.WhiteMs = ms
	} else {
		s.BlackMs = ms
	}
}

// Account charges elapsed time to the mover and adds the increment. A flag
// (remaining reaching zero) returns TimedOut with remaining zero and no
// increment. A now at or before LastMoveAt charges nothing, but the move
// still earns its increment and LastMoveAt never moves backwards.
func Account(s State, mover rules.Color, now time.Time) (State, Outcome) {
	nowMs := now.UnixMilli()
	if s.Unlimited() {
		s.LastMoveAt = max(s.LastMoveAt, nowMs)
		return s, Outcome{}
	}
	cur := s.remaining(mover)
	elapsed := max(nowMs-s.LastMoveAt, 0)
	left := cur - elapsed
	if left <= 0 {
		s.set(mover, 0)
		s.LastMoveAt = max(s.LastMoveAt, nowMs)
		return s, Outcome{SpentMs: cur, RemainingMs: 0, TimedOut: true}
	}
	left += s.IncrementMs
	s.set(mover, left)
	s.LastMoveAt = max(s.LastMoveAt, nowMs)
	return s, Outcome{SpentMs: elapsed, RemainingMs: left}
}

// Remaining is the live time of side at now, assuming side is to move.
// It never goes below zero and never mutates s.
func Remaining(s State, side rules.Color, now time.Time) int64 {
	cur := s.remaining(side)
	if s.Unlimited() {
		return cur
	}
	elapsed := now.UnixMilli() - s.LastMoveAt
	if elapsed < 0 {
		elapsed = 0
	}
	if left := cur - elapsed; left > 0 {
		return left
	}
	return 0
}

// Flagged reports whether the side to move has run out of time at now.
// This is the polling path used when the player never moves.
func Flagged(s State, turn rules.Color, now time.Time) bool {
	if s.Unlimited() {
		return false
	}
	return Remaining(s, turn, now) <= 0
}

// Restore sets side's time back to ms and restarts the running clock at
// now. Used when a takeback rewinds the game.
func Restore(s State, side rules.Color, ms int64, now time.Time) State {
	s.set(side, ms)
	s.LastMoveAt = now.UnixMilli()
	return s
}

// Settle charges the side to move up to now without increment, stopping the
// clock for a finished game.
func Settle(s State, turn rules.Color, now time.Time) State {
	if s.Unlimited() {
		return s
	}
	s.set(turn, Remaining(s, turn, now))
	if n := now.UnixMilli(); n > s.LastMoveAt {
		s.LastMoveAt = n
	}
	return s
}
