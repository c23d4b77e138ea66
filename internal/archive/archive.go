// Package archive stores completed games for later lookup and PGN export.
package archive

import (
	"context"
	"strings"
	"time"
)

// Game is the persisted record of a finished session.
type Game struct {
	SessionID    string
	WhiteID      string
	WhiteName    string
	BlackID      string
	BlackName    string
	WhiteRating  int
	BlackRating  int
	WhiteDelta   int
	BlackDelta   int
	Rated        bool
	TimeControl  string
	Source       string
	TournamentID string

	// Result is the terminal result token (checkmate, resignation, ...).
	// WinnerColor is "white", "black" or empty for a draw.
	Result      string
	WinnerColor string
	Reason      string

	InitialFEN string
	FinalFEN   string
	MovesUCI   []string
	MovesSAN   []string
	PGN        string

	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// Repository persists finished games. SaveGame is an upsert keyed by SessionID.
type Repository interface {
	SaveGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, sessionID string) (*Game, error)
	RecentGames(ctx context.Context, playerID string, limit int) ([]*Game, error)
	Close() error
}

// PGNResult maps a winner color to the PGN result token.
func PGNResult(winnerColor string) string {
	switch strings.ToLower(strings.TrimSpace(winnerColor)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

func (g *Game) involves(playerID string) bool {
	return g.WhiteID == playerID || g.BlackID == playerID
}
