package tournament

import (
	"time"

	"github.com/park285/cheese-arena/internal/session"
)

type Format string

const (
	FormatSingleElimination Format = "single_elimination"
	FormatRoundRobin        Format = "round_robin"
	FormatSwiss             Format = "swiss"
)

func (f Format) Valid() bool {
	switch f {
	case FormatSingleElimination, FormatRoundRobin, FormatSwiss:
		return true
	}
	return false
}

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type ParticipantStatus string

const (
	ParticipantActive     ParticipantStatus = "active"
	ParticipantEliminated ParticipantStatus = "eliminated"
	ParticipantCompleted  ParticipantStatus = "completed"
)

type MatchStatus string

const (
	MatchReady      MatchStatus = "ready"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
)

type Participant struct {
	PlayerID  string            `json:"player_id"`
	Name      string            `json:"name,omitempty"`
	Rating    int               `json:"rating,omitempty"`
	Seed      int               `json:"seed,omitempty"`
	Status    ParticipantStatus `json:"status"`
	Placement int               `json:"placement,omitempty"`
	JoinedAt  time.Time         `json:"joined_at"`
}

// Match is one pairing of a round. A bye has only Player1 and is completed
// on creation with Player1 as winner.
type Match struct {
	Round         int         `json:"round"`
	Number        int         `json:"number"`
	Player1       string      `json:"player1,omitempty"`
	Player2       string      `json:"player2,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	Status        MatchStatus `json:"status"`
	WinnerID      string      `json:"winner_id,omitempty"`
	Draw          bool        `json:"draw,omitempty"`
	Bye           bool        `json:"bye,omitempty"`
	NeedsDecision bool        `json:"needs_decision,omitempty"`
	// SessionLost marks a match whose game expired before it was recorded.
	SessionLost bool `json:"session_lost,omitempty"`
}

func (m *Match) Has(player string) bool {
	return player != "" && (m.Player1 == player || m.Player2 == player)
}

func (m *Match) Loser() string {
	if m.Status != MatchCompleted || m.Bye || m.WinnerID == "" {
		return ""
	}
	if m.WinnerID == m.Player1 {
		return m.Player2
	}
	return m.Player1
}

type Tournament struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	OrganizerID    string              `json:"organizer_id"`
	Format         Format              `json:"format"`
	Status         Status              `json:"status"`
	TimeControl    session.TimeControl `json:"time_control"`
	Rated          bool                `json:"rated"`
	SwissByePoints float64             `json:"swiss_bye_points"`
	CurrentRound   int                 `json:"current_round"`
	TotalRounds    int                 `json:"total_rounds"`
	Participants   []Participant       `json:"participants"`
	Matches        []Match             `json:"matches"`
	WinnerID       string              `json:"winner_id,omitempty"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Standing is one row of the points table.
type Standing struct {
	PlayerID  string  `json:"player_id"`
	Name      string  `json:"name,omitempty"`
	Seed      int     `json:"seed"`
	Rating    int     `json:"rating"`
	Points    float64 `json:"points"`
	Wins      int     `json:"wins"`
	Draws     int     `json:"draws"`
	Losses    int     `json:"losses"`
	Byes      int     `json:"byes"`
	Placement int     `json:"placement,omitempty"`
}

type CreateRequest struct {
	Name           string
	OrganizerID    string
	Format         Format
	TimeControl    session.TimeControl
	Rated          bool
	SwissByePoints float64
}

type JoinRequest struct {
	PlayerID string
	Name     string
	Rating   int
}

func (t *Tournament) participant(id string) *Participant {
	for i := range t.Participants {
		if t.Participants[i].PlayerID == id {
			return &t.Participants[i]
		}
	}
	return nil
}

func (t *Tournament) matchBySession(sessionID string) *Match {
	if sessionID == "" {
		return nil
	}
	for i := range t.Matches {
		if t.Matches[i].SessionID == sessionID {
			return &t.Matches[i]
		}
	}
	return nil
}

// RoundMatches returns the matches of round r in match-number order.
func (t *Tournament) RoundMatches(r int) []Match {
	var out []Match
	for _, m := range t.Matches {
		if m.Round == r {
			out = append(out, m)
		}
	}
	return out
}

func clone(t *Tournament) *Tournament {
	cp := *t
	cp.Participants = append([]Participant(nil), t.Participants...)
	cp.Matches = append([]Match(nil), t.Matches...)
	return &cp
}
