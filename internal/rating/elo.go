package rating

import "math"

// Score is a game result from one player's point of view.
type Score int

const (
	Loss Score = iota
	Draw
	Win
)

const (
	// K-factor by number of rated games played
	KNewbie = 32 // < 30 games
	KActive = 24 // 30-100 games
	KExpert = 16 // > 100 games

	MinRating = 100
	MaxRating = 3000

	// Default is assigned to players without a rating.
	Default = 1200
)

// Player is the rating input of one side.
type Player struct {
	Rating      int
	GamesPlayed int
}

// Change is the rating delta for both sides of a finished game.
type Change struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// Expected returns the expected score of a against b:
// E = 1 / (1 + 10^((b - a) / 400))
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

func kFactor(games int) int {
	switch {
	case games < 30:
		return KNewbie
	case games < 100:
		return KActive
	default:
		return KExpert
	}
}

// NewRating applies ΔR = K × (S − E) and clamps to [MinRating, MaxRating].
func NewRating(p Player, opponent int, s Score) int {
	r := p.Rating
	if r <= 0 {
		r = Default
	}
	if opponent <= 0 {
		opponent = Default
	}
	actual := 0.0
	switch s {
	case Win:
		actual = 1.0
	case Draw:
		actual = 0.5
	}
	next := r + int(math.Round(float64(kFactor(p.GamesPlayed))*(actual-Expected(r, opponent))))
	if next < MinRating {
		next = MinRating
	}
	if next > MaxRating {
		next = MaxRating
	}
	return next
}

// Scores converts a winner color ("white", "black", anything else = draw)
// into per-side scores.
func Scores(winner string) (white, black Score) {
	switch winner {
	case "white":
		return Win, Loss
	case "black":
		return Loss, Win
	}
	return Draw, Draw
}

// Compute returns both rating deltas for a game won by winner.
func Compute(white, black Player, winner string) Change {
	ws, bs := Scores(winner)
	wr, br := white.Rating, black.Rating
	if wr <= 0 {
		wr = Default
	}
	if br <= 0 {
		br = Default
	}
	return Change{
		White: NewRating(white, br, ws) - wr,
		Black: NewRating(black, wr, bs) - br,
	}
}
