package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// change is the value computed by a pure transition. The manager commits it
// and only then fires events, archive writes and hooks.
type change struct {
	op        string
	next      *Session
	appended  []MoveRecord
	drop      int
	spawn     *Session
	events    []arenadto.Event
	activated bool
	completed bool
	timedOut  bool
}

func transitionErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{arenadto.ErrInvalidTransition}, args...)...)
}

func notAPlayer(player string) error {
	return fmt.Errorf("%w: %s", arenadto.ErrNotAPlayer, player)
}

func sideMs(st clock.State, c rules.Color) int64 {
	if c == rules.White {
		return st.WhiteMs
	}
	return st.BlackMs
}

func normFEN(s string) string { return strings.Join(strings.Fields(s), " ") }

func build(ns NewSession, id string, now time.Time, whiteFirst bool) (*Session, error) {
	first, second := ns.First, ns.Second
	first.ID, second.ID = strings.TrimSpace(first.ID), strings.TrimSpace(second.ID)
	if first.ID == "" || second.ID == "" {
		return nil, fmt.Errorf("%w: both players are required", arenadto.ErrInvalidArgs)
	}
	if first.ID == second.ID {
		return nil, fmt.Errorf("%w: a player cannot play themselves", arenadto.ErrInvalidArgs)
	}
	if ns.TimeControl.Minutes < 0 || ns.TimeControl.Increment < 0 {
		return nil, fmt.Errorf("%w: negative time control", arenadto.ErrInvalidArgs)
	}
	pos, err := initialPosition(ns.InitialFEN)
	if err != nil {
		return nil, err
	}

	switch ns.Colors {
	case FirstWhite:
		whiteFirst = true
	case FirstBlack:
		whiteFirst = false
	}
	white, black := first, second
	if !whiteFirst {
		white, black = second, first
	}
	src := ns.Source
	if src == "" {
		src = SourceInvite
	}
	started := now
	s := &Session{
		ID:              id,
		Status:          StatusActive,
		Source:          src,
		Rated:           ns.Rated,
		TournamentID:    ns.TournamentID,
		TournamentMatch: ns.TournamentMatch,
		KeepSeconds:     int64(ns.Keep / time.Second),
		TimeControl:     ns.TimeControl,
		InitialFEN:      pos.FEN(),
		FEN:             pos.FEN(),
		PositionKeys:    []string{pos.Key()},
		Clock:           clock.New(ns.TimeControl.Minutes*60, ns.TimeControl.Increment, now),
		CreatedAt:       now,
		StartedAt:       &started,
		UpdatedAt:       now,
	}
	seat(s, rules.White, white)
	seat(s, rules.Black, black)
	return s, nil
}

func seat(s *Session, c rules.Color, p Player) {
	r := p.Rating
	if r <= 0 {
		r = rating.Default
	}
	if c == rules.White {
		s.WhiteID, s.WhiteName, s.WhiteRating, s.WhiteGames = p.ID, p.Name, r, p.Games
		return
	}
	s.BlackID, s.BlackName, s.BlackRating, s.BlackGames = p.ID, p.Name, r, p.Games
}

func initialPosition(fen string) (rules.Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return rules.StartingPosition(), nil
	}
	pos, err := rules.ParseFEN(fen)
	if err != nil {
		return rules.Position{}, fmt.Errorf("%w: %v", arenadto.ErrInvalidArgs, err)
	}
	if rules.Status(pos, nil) != rules.Ongoing {
		return rules.Position{}, fmt.Errorf("%w: initial position is already terminal", arenadto.ErrInvalidArgs)
	}
	return pos, nil
}

func buildOpen(o OpenSeat, id string, now time.Time) (*Session, error) {
	host := o.Host
	host.ID = strings.TrimSpace(host.ID)
	if host.ID == "" {
		return nil, fmt.Errorf("%w: host is required", arenadto.ErrInvalidArgs)
	}
	if o.TimeControl.Minutes < 0 || o.TimeControl.Increment < 0 {
		return nil, fmt.Errorf("%w: negative time control", arenadto.ErrInvalidArgs)
	}
	pos, err := initialPosition(o.InitialFEN)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:           id,
		Status:       StatusWaiting,
		Source:       SourceOpen,
		HostID:       host.ID,
		Rated:        o.Rated,
		TimeControl:  o.TimeControl,
		InitialFEN:   pos.FEN(),
		FEN:          pos.FEN(),
		PositionKeys: []string{pos.Key()},
		Clock:        clock.New(o.TimeControl.Minutes*60, o.TimeControl.Increment, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	seat(s, rules.White, host)
	return s, nil
}

func startedEvents(s *Session, now time.Time) []arenadto.Event {
	return []arenadto.Event{
		{Kind: arenadto.EventGameStarted, Recipient: s.WhiteID, SessionID: s.ID, OpponentID: s.BlackID, Color: "white", At: now},
		{Kind: arenadto.EventGameStarted, Recipient: s.BlackID, SessionID: s.ID, OpponentID: s.WhiteID, Color: "black", At: now},
	}
}

func endedEvents(s *Session, now time.Time) []arenadto.Event {
	reason := s.DrawReason
	out := make([]arenadto.Event, 0, 2)
	for _, p := range []string{s.WhiteID, s.BlackID} {
		out = append(out, arenadto.Event{
			Kind:       arenadto.EventGameEnded,
			Recipient:  p,
			SessionID:  s.ID,
			OpponentID: s.Opponent(p),
			Result:     string(s.Result),
			Reason:     reason,
			WinnerID:   s.WinnerID,
			At:         now,
		})
	}
	return out
}

// finish completes s. winner is ignored when decisive is false.
func finish(s *Session, result Result, winner rules.Color, decisive bool, reason string, now time.Time) {
	t := now
	s.Status = StatusCompleted
	s.Result = result
	s.CompletedAt = &t
	s.DrawOfferedBy = ""
	s.UndoRequestedBy = ""
	s.WinnerID, s.WinnerColor, s.DrawReason = "", "", ""
	if decisive {
		s.WinnerColor = winner.String()
		s.WinnerID = s.PlayerOf(winner)
	} else {
		s.DrawReason = reason
	}
	if s.Rated {
		rc := rating.Compute(
			rating.Player{Rating: s.WhiteRating, GamesPlayed: s.WhiteGames},
			rating.Player{Rating: s.BlackRating, GamesPlayed: s.BlackGames},
			s.WinnerColor,
		)
		s.RatingChange = &rc
	}
}

func completedChange(op string, next *Session, now time.Time) *change {
	return &change{op: op, next: next, completed: true, events: endedEvents(next, now)}
}

func requireActive(cur *Session, player string) (rules.Color, error) {
	if cur.Status != StatusActive {
		return rules.White, transitionErr("session is %s", cur.Status)
	}
	c, ok := cur.ColorOf(player)
	if !ok {
		return rules.White, notAPlayer(player)
	}
	return c, nil
}

func applyMove(cur *Session, player, text, baseFEN string, now time.Time) (*change, *MoveRecord, error) {
	color, err := requireActive(cur, player)
	if err != nil {
		return nil, nil, err
	}
	pos, err := rules.ParseFEN(cur.FEN)
	if err != nil {
		return nil, nil, fmt.Errorf("stored position: %w", err)
	}
	if pos.Turn() != color {
		return nil, nil, fmt.Errorf("%w: %s to move", arenadto.ErrNotYourTurn, pos.Turn())
	}
	// 클라이언트가 보던 국면이 없으면 거부
	if strings.TrimSpace(baseFEN) == "" {
		return nil, nil, fmt.Errorf("%w: base position is required", arenadto.ErrInvalidArgs)
	}
	if normFEN(baseFEN) != normFEN(cur.FEN) {
		return nil, nil, fmt.Errorf("%w: position has moved on", arenadto.ErrStalePosition)
	}

	// a flagged mover loses whatever they submit
	if clock.Flagged(cur.Clock, color, now) {
		next := clone(cur)
		next.Clock, _ = clock.Account(cur.Clock, color, now)
		finish(next, ResultTimeout, color.Other(), true, "", now)
		ch := completedChange("session_timeout", next, now)
		ch.timedOut = true
		return ch, nil, nil
	}

	mv, err := rules.ParseMove(pos, text)
	if err != nil {
		return nil, nil, err
	}
	res, err := rules.Apply(pos, mv, color, cur.PositionKeys)
	if err != nil {
		return nil, nil, err
	}
	st, out := clock.Account(cur.Clock, color, now)
	if out.TimedOut {
		next := clone(cur)
		next.Clock = st
		finish(next, ResultTimeout, color.Other(), true, "", now)
		ch := completedChange("session_timeout", next, now)
		ch.timedOut = true
		return ch, nil, nil
	}

	next := clone(cur)
	next.FEN = res.Position.FEN()
	next.PositionKeys = append(next.PositionKeys, res.Position.Key())
	next.MoveCount = cur.MoveCount + 1
	next.Clock = st
	next.DrawOfferedBy = ""
	next.UndoRequestedBy = ""

	rec := MoveRecord{
		Seq:               next.MoveCount,
		MoverID:           player,
		Color:             color.String(),
		UCI:               res.Move.UCI(),
		SAN:               res.SAN,
		FEN:               next.FEN,
		TimeSpentMs:       out.SpentMs,
		RemainingMs:       sideMs(st, color),
		RemainingBeforeMs: sideMs(cur.Clock, color),
		Flags:             res.Flags,
		PlayedAt:          now,
	}
	ch := &change{op: "session_move", next: next, appended: []MoveRecord{rec}}

	switch res.Terminal {
	case rules.Ongoing:
	case rules.Checkmate:
		finish(next, ResultCheckmate, color, true, "", now)
	case rules.Stalemate:
		finish(next, ResultStalemate, color, false, DrawStalemate, now)
	default:
		finish(next, ResultDraw, color, false, drawReason(res.Terminal), now)
	}
	if next.Status == StatusCompleted {
		ch.completed = true
		ch.events = endedEvents(next, now)
	}
	return ch, &rec, nil
}

func drawReason(t rules.Terminal) string {
	switch t {
	case rules.ThreefoldRepetition:
		return DrawThreefold
	case rules.FiftyMoveRule:
		return DrawFiftyMove
	case rules.InsufficientMaterial:
		return DrawInsufficient
	case rules.Stalemate:
		return DrawStalemate
	}
	return t.String()
}

func resign(cur *Session, player string, now time.Time) (*change, error) {
	color, err := requireActive(cur, player)
	if err != nil {
		return nil, err
	}
	next := clone(cur)
	next.Clock = clock.Settle(cur.Clock, cur.Turn(), now)
	finish(next, ResultResignation, color.Other(), true, "", now)
	return completedChange("session_resign", next, now), nil
}

func offerDraw(cur *Session, player string, now time.Time) (*change, error) {
	if _, err := requireActive(cur, player); err != nil {
		return nil, err
	}
	if cur.DrawOfferedBy != "" {
		return nil, transitionErr("a draw offer is already pending")
	}
	next := clone(cur)
	next.DrawOfferedBy = player
	opp := cur.Opponent(player)
	return &change{op: "session_draw_offer", next: next, events: []arenadto.Event{
		{Kind: arenadto.EventDrawOffered, Recipient: opp, SessionID: cur.ID, OpponentID: player, At: now},
	}}, nil
}

func respondDraw(cur *Session, player string, accept bool, now time.Time) (*change, error) {
	if _, err := requireActive(cur, player); err != nil {
		return nil, err
	}
	if cur.DrawOfferedBy == "" || cur.DrawOfferedBy == player {
		return nil, transitionErr("no draw offer to answer")
	}
	next := clone(cur)
	if !accept {
		next.DrawOfferedBy = ""
		return &change{op: "session_draw_decline", next: next}, nil
	}
	next.Clock = clock.Settle(cur.Clock, cur.Turn(), now)
	finish(next, ResultDraw, rules.White, false, DrawAgreement, now)
	return completedChange("session_draw_agreed", next, now), nil
}

func lastMoveBy(moves []MoveRecord, player string) int {
	for i := len(moves) - 1; i >= 0; i-- {
		if moves[i].MoverID == player {
			return i
		}
	}
	return -1
}

func requestTakeback(cur *Session, moves []MoveRecord, player string, now time.Time) (*change, error) {
	if _, err := requireActive(cur, player); err != nil {
		return nil, err
	}
	if cur.UndoRequestedBy != "" {
		return nil, transitionErr("a takeback request is already pending")
	}
	if lastMoveBy(moves, player) < 0 {
		return nil, transitionErr("nothing to take back")
	}
	next := clone(cur)
	next.UndoRequestedBy = player
	return &change{op: "session_takeback_request", next: next, events: []arenadto.Event{
		{Kind: arenadto.EventUndoRequested, Recipient: cur.Opponent(player), SessionID: cur.ID, OpponentID: player, At: now},
	}}, nil
}

func respondTakeback(cur *Session, moves []MoveRecord, player string, accept bool, now time.Time) (*change, error) {
	if _, err := requireActive(cur, player); err != nil {
		return nil, err
	}
	requester := cur.UndoRequestedBy
	if requester == "" || requester == player {
		return nil, transitionErr("no takeback request to answer")
	}
	next := clone(cur)
	next.UndoRequestedBy = ""
	if !accept {
		return &change{op: "session_takeback_decline", next: next}, nil
	}
	k := lastMoveBy(moves, requester)
	if k < 0 {
		return nil, transitionErr("nothing to take back")
	}
	drop := len(moves) - k
	if drop > len(next.PositionKeys)-1 {
		return nil, fmt.Errorf("move history is inconsistent with session %s", cur.ID)
	}

	next.FEN = next.InitialFEN
	if k > 0 {
		next.FEN = moves[k-1].FEN
	}
	next.PositionKeys = next.PositionKeys[:len(next.PositionKeys)-drop]
	next.MoveCount = cur.MoveCount - drop
	next.DrawOfferedBy = ""

	st := cur.Clock
	for i := k; i < len(moves); i++ {
		c, _ := rules.ParseColor(moves[i].Color)
		st = clock.Restore(st, c, moves[i].RemainingBeforeMs, now)
	}
	st.LastMoveAt = now.UnixMilli()
	next.Clock = st
	return &change{op: "session_takeback", next: next, drop: drop}, nil
}

// claimTimeout returns a nil change when there is nothing to claim.
func claimTimeout(cur *Session, now time.Time) *change {
	if cur.Status != StatusActive {
		return nil
	}
	turn := cur.Turn()
	if !clock.Flagged(cur.Clock, turn, now) {
		return nil
	}
	next := clone(cur)
	next.Clock = clock.Settle(cur.Clock, turn, now)
	finish(next, ResultTimeout, turn.Other(), true, "", now)
	ch := completedChange("session_timeout", next, now)
	ch.timedOut = true
	return ch
}

func join(cur *Session, p Player, now time.Time, hostWhite bool) (*change, error) {
	p.ID = strings.TrimSpace(p.ID)
	if cur.Status != StatusWaiting {
		return nil, transitionErr("session is %s", cur.Status)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: player is required", arenadto.ErrInvalidArgs)
	}
	if p.ID == cur.HostID {
		return nil, transitionErr("host cannot join their own session")
	}
	next := clone(cur)
	host := Player{ID: cur.WhiteID, Name: cur.WhiteName, Rating: cur.WhiteRating, Games: cur.WhiteGames}
	if hostWhite {
		seat(next, rules.White, host)
		seat(next, rules.Black, p)
	} else {
		seat(next, rules.White, p)
		seat(next, rules.Black, host)
	}
	started := now
	next.Status = StatusActive
	next.StartedAt = &started
	next.Clock = clock.New(cur.TimeControl.Minutes*60, cur.TimeControl.Increment, now)
	return &change{op: "session_join", next: next, activated: true, events: startedEvents(next, now)}, nil
}

func requestRematch(cur *Session, player string, now time.Time) (*change, error) {
	if cur.Status != StatusCompleted {
		return nil, transitionErr("session is %s", cur.Status)
	}
	if _, ok := cur.ColorOf(player); !ok {
		return nil, notAPlayer(player)
	}
	if cur.Source == SourceTournament {
		return nil, transitionErr("tournament games cannot be rematched")
	}
	if cur.RematchSessionID != "" || cur.RematchRequestedBy != "" {
		return nil, transitionErr("rematch already requested")
	}
	next := clone(cur)
	next.RematchRequestedBy = player
	return &change{op: "session_rematch_request", next: next, events: []arenadto.Event{
		{Kind: arenadto.EventRematchRequested, Recipient: cur.Opponent(player), SessionID: cur.ID, OpponentID: player, At: now},
	}}, nil
}

func respondRematch(cur *Session, player string, accept bool, newID string, now time.Time) (*change, error) {
	if cur.Status != StatusCompleted {
		return nil, transitionErr("session is %s", cur.Status)
	}
	if _, ok := cur.ColorOf(player); !ok {
		return nil, notAPlayer(player)
	}
	if cur.RematchRequestedBy == "" || cur.RematchRequestedBy == player || cur.RematchSessionID != "" {
		return nil, transitionErr("no rematch request to answer")
	}
	next := clone(cur)
	if !accept {
		next.RematchRequestedBy = ""
		return &change{op: "session_rematch_decline", next: next}, nil
	}
	white := Player{ID: cur.BlackID, Name: cur.BlackName, Rating: cur.BlackRating, Games: cur.BlackGames}
	black := Player{ID: cur.WhiteID, Name: cur.WhiteName, Rating: cur.WhiteRating, Games: cur.WhiteGames}
	if cur.Rated {
		white.Games++
		black.Games++
		if cur.RatingChange != nil {
			white.Rating += cur.RatingChange.Black
			black.Rating += cur.RatingChange.White
		}
	}
	spawn, err := build(NewSession{
		First:       white,
		Second:      black,
		Colors:      FirstWhite,
		TimeControl: cur.TimeControl,
		Rated:       cur.Rated,
		Source:      SourceRematch,
		InitialFEN:  cur.InitialFEN,
	}, newID, now, true)
	if err != nil {
		return nil, err
	}
	next.RematchSessionID = spawn.ID
	return &change{op: "session_rematch", next: next, spawn: spawn}, nil
}
