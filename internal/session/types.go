package session

import (
	"strconv"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/rules"
)

// Status represents the session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Result is the terminal result of a completed session.
type Result string

const (
	ResultNone        Result = ""
	ResultWhiteWon    Result = "white_won"
	ResultBlackWon    Result = "black_won"
	ResultDraw        Result = "draw"
	ResultTimeout     Result = "timeout"
	ResultResignation Result = "resignation"
	ResultStalemate   Result = "stalemate"
	ResultCheckmate   Result = "checkmate"
)

// Source records how a session came to exist.
type Source string

const (
	SourceMatchmaking Source = "matchmaking"
	SourceInvite      Source = "invite"
	SourceRematch     Source = "rematch"
	SourceTournament  Source = "tournament"
	SourceOpen        Source = "open"
)

// Draw reasons.
const (
	DrawThreefold    = "threefold_repetition"
	DrawFiftyMove    = "fifty_move_rule"
	DrawInsufficient = "insufficient_material"
	DrawAgreement    = "agreement"
	DrawStalemate    = "stalemate"
)

// TimeControl is minutes of base time plus seconds of increment per move.
// A zero value is an untimed game.
type TimeControl struct {
	Minutes   int `json:"minutes"`
	Increment int `json:"increment"`
}

// Session is the persisted state of one game.
type Session struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Source    Source `json:"source"`
	Version   int64  `json:"version"`
	HostID    string `json:"host_id,omitempty"`
	WhiteID   string `json:"white_id"`
	WhiteName string `json:"white_name"`
	BlackID   string `json:"black_id"`
	BlackName string `json:"black_name"`

	Rated        bool           `json:"rated"`
	WhiteRating  int            `json:"white_rating,omitempty"`
	BlackRating  int            `json:"black_rating,omitempty"`
	WhiteGames   int            `json:"white_games,omitempty"`
	BlackGames   int            `json:"black_games,omitempty"`
	RatingChange *rating.Change `json:"rating_change,omitempty"`

	TournamentID    string `json:"tournament_id,omitempty"`
	TournamentMatch int    `json:"tournament_match,omitempty"`
	// KeepSeconds overrides the manager TTL for this session's keys.
	KeepSeconds int64 `json:"keep_seconds,omitempty"`

	TimeControl  TimeControl `json:"time_control"`
	InitialFEN   string      `json:"initial_fen"`
	FEN          string      `json:"fen"`
	PositionKeys []string    `json:"position_keys"`
	MoveCount    int         `json:"move_count"`
	Clock        clock.State `json:"clock"`

	Result      Result `json:"result,omitempty"`
	WinnerID    string `json:"winner_id,omitempty"`
	WinnerColor string `json:"winner_color,omitempty"`
	DrawReason  string `json:"draw_reason,omitempty"`

	DrawOfferedBy      string `json:"draw_offered_by,omitempty"`
	UndoRequestedBy    string `json:"undo_requested_by,omitempty"`
	RematchRequestedBy string `json:"rematch_requested_by,omitempty"`
	RematchSessionID   string `json:"rematch_session_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MoveRecord is one applied move. Records are append-only except for takeback.
type MoveRecord struct {
	Seq               int         `json:"seq"`
	MoverID           string      `json:"mover_id"`
	Color             string      `json:"color"`
	UCI               string      `json:"uci"`
	SAN               string      `json:"san"`
	FEN               string      `json:"fen"`
	TimeSpentMs       int64       `json:"time_spent_ms"`
	RemainingMs       int64       `json:"remaining_ms"`
	RemainingBeforeMs int64       `json:"remaining_before_ms"`
	Flags             rules.Flags `json:"flags"`
	PlayedAt          time.Time   `json:"played_at"`
}

// Player is one side handed to Create.
type Player struct {
	ID     string
	Name   string
	Rating int
	Games  int
}

// ColorChoice decides who plays white in Create.
type ColorChoice int

const (
	ColorRandom ColorChoice = iota
	// FirstWhite gives white to NewSession.First.
	FirstWhite
	// FirstBlack gives black to NewSession.First.
	FirstBlack
)

// NewSession describes an active session to be created.
type NewSession struct {
	ID              string
	First           Player
	Second          Player
	Colors          ColorChoice
	TimeControl     TimeControl
	Rated           bool
	Source          Source
	TournamentID    string
	TournamentMatch int
	InitialFEN      string
	// Keep, when longer than the manager TTL, keeps the session's keys alive
	// that long after each write.
	Keep time.Duration
}

// OpenSeat describes a waiting session with the host seated.
type OpenSeat struct {
	Host        Player
	TimeControl TimeControl
	Rated       bool
	InitialFEN  string
}

// MoveResult is returned by ApplyMove. When TimedOut is set the move was
// not applied and the session completed on time.
type MoveResult struct {
	Session  *Session
	Record   *MoveRecord
	TimedOut bool
}

// ColorOf returns the color player plays in s.
func (s *Session) ColorOf(player string) (rules.Color, bool) {
	switch player {
	case "":
		return rules.White, false
	case s.WhiteID:
		return rules.White, true
	case s.BlackID:
		return rules.Black, true
	}
	return rules.White, false
}

// PlayerOf returns the player id seated at c.
func (s *Session) PlayerOf(c rules.Color) string {
	if c == rules.White {
		return s.WhiteID
	}
	return s.BlackID
}

// Opponent returns the other player's id, or "" if player is not seated.
func (s *Session) Opponent(player string) string {
	c, ok := s.ColorOf(player)
	if !ok {
		return ""
	}
	return s.PlayerOf(c.Other())
}

// HasPlayer reports whether player is seated (or hosting a waiting session).
func (s *Session) HasPlayer(player string) bool {
	if _, ok := s.ColorOf(player); ok {
		return true
	}
	return player != "" && player == s.HostID
}

// Turn is the side to move in the current position.
func (s *Session) Turn() rules.Color {
	pos, err := rules.ParseFEN(s.FEN)
	if err != nil {
		return rules.White
	}
	return pos.Turn()
}

// Draw reports whether a completed session ended without a winner.
func (s *Session) Draw() bool {
	return s.Status == StatusCompleted && s.WinnerID == ""
}

// OutcomeResult folds the detailed result into white_won/black_won/draw.
func (s *Session) OutcomeResult() Result {
	switch s.WinnerColor {
	case "white":
		return ResultWhiteWon
	case "black":
		return ResultBlackWon
	}
	if s.Status == StatusCompleted {
		return ResultDraw
	}
	return ResultNone
}

func (tc TimeControl) String() string {
	if tc.Minutes == 0 && tc.Increment == 0 {
		return "-"
	}
	return strconv.Itoa(tc.Minutes) + "+" + strconv.Itoa(tc.Increment)
}

func clone(s *Session) *Session {
	cp := *s
	cp.PositionKeys = append([]string(nil), s.PositionKeys...)
	if s.RatingChange != nil {
		rc := *s.RatingChange
		cp.RatingChange = &rc
	}
	return &cp
}
