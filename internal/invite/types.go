package invite

import (
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/session"
)

type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Challenge is a direct game offer from one player to another. Color is the
// challenger's side.
type Challenge struct {
	ID             string
	ChallengerID   string
	ChallengerName string
	TargetID       string
	Color          ColorChoice
	TimeControl    session.TimeControl
	Rated          bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Status         Status
	SessionID      string
}

type Request struct {
	ChallengerID   string
	ChallengerName string
	TargetID       string
	Color          ColorChoice
	TimeControl    session.TimeControl
	Rated          bool
}
