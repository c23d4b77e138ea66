package tournament

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	ErrAlreadyJoined = fmt.Errorf("%w: already joined", arenadto.ErrInvalidTransition)
	ErrNotStarted    = fmt.Errorf("%w: tournament is not active", arenadto.ErrInvalidTransition)
)

func newTournament(req CreateRequest, id string, now time.Time) (*Tournament, error) {
	name := strings.TrimSpace(req.Name)
	org := strings.TrimSpace(req.OrganizerID)
	if name == "" || org == "" {
		return nil, fmt.Errorf("%w: name and organizer are required", arenadto.ErrInvalidArgs)
	}
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: unknown format %q", arenadto.ErrInvalidArgs, req.Format)
	}
	if req.TimeControl.Minutes < 0 || req.TimeControl.Increment < 0 {
		return nil, fmt.Errorf("%w: negative time control", arenadto.ErrInvalidArgs)
	}
	if req.SwissByePoints < 0 || req.SwissByePoints > 1 {
		return nil, fmt.Errorf("%w: bye points must be between 0 and 1", arenadto.ErrInvalidArgs)
	}
	return &Tournament{
		ID:             id,
		Name:           name,
		OrganizerID:    org,
		Format:         req.Format,
		Status:         StatusUpcoming,
		TimeControl:    req.TimeControl,
		Rated:          req.Rated,
		SwissByePoints: req.SwissByePoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func join(t *Tournament, req JoinRequest, now time.Time) error {
	id := strings.TrimSpace(req.PlayerID)
	if id == "" {
		return fmt.Errorf("%w: player id is required", arenadto.ErrInvalidArgs)
	}
	if t.Status != StatusUpcoming {
		return fmt.Errorf("%w: registration closed", arenadto.ErrInvalidTransition)
	}
	if t.participant(id) != nil {
		return ErrAlreadyJoined
	}
	t.Participants = append(t.Participants, Participant{
		PlayerID: id,
		Name:     req.Name,
		Rating:   req.Rating,
		Status:   ParticipantActive,
		JoinedAt: now,
	})
	return nil
}

func leave(t *Tournament, playerID string) error {
	if t.Status != StatusUpcoming {
		return fmt.Errorf("%w: registration closed", arenadto.ErrInvalidTransition)
	}
	for i, p := range t.Participants {
		if p.PlayerID == playerID {
			t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not registered", arenadto.ErrNotFound, playerID)
}

// start seeds the field and lays out round 1. It returns the indexes of the
// matches that need a game session.
func start(t *Tournament, organizerID string, shuffle Shuffler, now time.Time) ([]int, error) {
	if organizerID != t.OrganizerID {
		return nil, arenadto.ErrNotOrganizer
	}
	if t.Status != StatusUpcoming {
		return nil, fmt.Errorf("%w: tournament already %s", arenadto.ErrInvalidTransition, t.Status)
	}
	if len(t.Participants) < 2 {
		return nil, arenadto.ErrInsufficientParticipants
	}
	t.Participants = Seed(t.Participants, shuffle)
	ids := make([]string, len(t.Participants))
	for i, p := range t.Participants {
		ids[i] = p.PlayerID
	}

	t.Status = StatusActive
	t.StartedAt = &now
	t.CurrentRound = 1
	if t.Format == FormatRoundRobin {
		t.TotalRounds = 1
		return addRound(t, 1, RoundRobinPairings(ids), ""), nil
	}
	t.TotalRounds = SwissRounds(len(ids))
	pairs, bye := PairAdjacent(ids)
	return addRound(t, 1, pairs, bye), nil
}

func addRound(t *Tournament, round int, pairs [][2]string, bye string) []int {
	var playable []int
	n := 0
	for _, p := range pairs {
		n++
		t.Matches = append(t.Matches, Match{Round: round, Number: n, Player1: p[0], Player2: p[1], Status: MatchReady})
		playable = append(playable, len(t.Matches)-1)
	}
	if bye != "" {
		n++
		t.Matches = append(t.Matches, Match{Round: round, Number: n, Player1: bye, Status: MatchCompleted, WinnerID: bye, Bye: true})
	}
	return playable
}

// record stores the outcome of the game behind sessionID. winnerID is empty
// for a draw. A drawn knockout game waits for an organizer decision.
func record(t *Tournament, sessionID, winnerID string) bool {
	m := t.matchBySession(sessionID)
	if m == nil || m.Status == MatchCompleted || m.NeedsDecision {
		return false
	}
	if winnerID != "" && !m.Has(winnerID) {
		return false
	}
	if winnerID == "" {
		m.Draw = true
		if t.Format == FormatSingleElimination {
			m.NeedsDecision = true
			return true
		}
	}
	m.Status = MatchCompleted
	m.WinnerID = winnerID
	return true
}

// lost hands a match whose game can no longer be read to the organizer.
func lost(t *Tournament, sessionID string) bool {
	m := t.matchBySession(sessionID)
	if m == nil || m.Status == MatchCompleted || m.NeedsDecision {
		return false
	}
	m.NeedsDecision = true
	m.SessionLost = true
	return true
}

func decide(t *Tournament, organizerID string, round, number int, winnerID string) error {
	if organizerID != t.OrganizerID {
		return arenadto.ErrNotOrganizer
	}
	if t.Status != StatusActive {
		return ErrNotStarted
	}
	for i := range t.Matches {
		m := &t.Matches[i]
		if m.Round != round || m.Number != number {
			continue
		}
		if !m.NeedsDecision {
			return fmt.Errorf("%w: match %d.%d has no pending decision", arenadto.ErrInvalidTransition, round, number)
		}
		// 점수제 형식은 무승부로 판정할 수 있다
		drawn := winnerID == "" && t.Format != FormatSingleElimination
		if !drawn && !m.Has(winnerID) {
			return fmt.Errorf("%w: %s did not play match %d.%d", arenadto.ErrInvalidArgs, winnerID, round, number)
		}
		m.NeedsDecision = false
		m.Status = MatchCompleted
		m.WinnerID = winnerID
		m.Draw = drawn
		return nil
	}
	return fmt.Errorf("%w: match %d.%d", arenadto.ErrNotFound, round, number)
}

type advanced struct {
	newRound  bool
	completed bool
	playable  []int
}

// advance moves to the next round once every match of the current one has
// completed. Calling it again without new results changes nothing.
func advance(t *Tournament, now time.Time) advanced {
	var out advanced
	if t.Status != StatusActive {
		return out
	}
	current := t.RoundMatches(t.CurrentRound)
	for _, m := range current {
		if m.Status != MatchCompleted {
			return out
		}
	}

	switch t.Format {
	case FormatSingleElimination:
		var winners []string
		k := 0
		for _, m := range current {
			winners = append(winners, m.WinnerID)
			if m.Bye {
				k++
			} else {
				k += 2
			}
		}
		place := (k+1)/2 + 1
		for _, m := range current {
			if p := t.participant(m.Loser()); p != nil {
				p.Status = ParticipantEliminated
				p.Placement = place
			}
		}
		if len(winners) == 1 {
			if p := t.participant(winners[0]); p != nil {
				p.Status = ParticipantCompleted
				p.Placement = 1
			}
			t.WinnerID = winners[0]
			complete(t, now)
			out.completed = true
			return out
		}
		pairs, bye := PairAdjacent(winners)
		out.playable = nextRound(t, pairs, bye)
	case FormatRoundRobin:
		finishPoints(t, now)
		out.completed = true
		return out
	case FormatSwiss:
		if t.CurrentRound >= t.TotalRounds {
			finishPoints(t, now)
			out.completed = true
			return out
		}
		order := make([]string, 0, len(t.Participants))
		for _, s := range Standings(t) {
			order = append(order, s.PlayerID)
		}
		// players left in Unpaired sit this round out
		r := SwissPairings(order, history(t))
		out.playable = nextRound(t, r.Pairs, r.Bye)
	}
	out.newRound = true
	if len(out.playable) == 0 {
		// nothing to play this round, e.g. everyone left sat out
		next := advance(t, now)
		next.newRound = true
		return next
	}
	return out
}

func nextRound(t *Tournament, pairs [][2]string, bye string) []int {
	t.CurrentRound++
	return addRound(t, t.CurrentRound, pairs, bye)
}

func history(t *Tournament) *History {
	h := NewHistory()
	for _, m := range t.Matches {
		if m.Bye {
			h.AddBye(m.Player1)
			continue
		}
		h.AddGame(m.Player1, m.Player2)
	}
	return h
}

func finishPoints(t *Tournament, now time.Time) {
	for i := range t.Participants {
		t.Participants[i].Status = ParticipantCompleted
	}
	if st := Standings(t); len(st) > 0 {
		t.WinnerID = st[0].PlayerID
	}
	complete(t, now)
}

func complete(t *Tournament, now time.Time) {
	t.Status = StatusCompleted
	t.CompletedAt = &now
}
