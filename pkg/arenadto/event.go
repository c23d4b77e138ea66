package arenadto

import "time"

// EventKind names a notification sent to a player.
type EventKind string

const (
	EventMatchFound          EventKind = "match_found"
	EventGameStarted         EventKind = "game_started"
	EventGameEnded           EventKind = "game_ended"
	EventDrawOffered         EventKind = "draw_offered"
	EventUndoRequested       EventKind = "undo_requested"
	EventRematchRequested    EventKind = "rematch_requested"
	EventTournamentRound     EventKind = "tournament_round_started"
	EventTournamentCompleted EventKind = "tournament_completed"
)

// Event is the payload delivered to one recipient.
type Event struct {
	Kind         EventKind `json:"kind"`
	Recipient    string    `json:"recipient"`
	SessionID    string    `json:"session_id,omitempty"`
	TournamentID string    `json:"tournament_id,omitempty"`
	OpponentID   string    `json:"opponent_id,omitempty"`
	Color        string    `json:"color,omitempty"`
	Result       string    `json:"result,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	WinnerID     string    `json:"winner_id,omitempty"`
	Round        int       `json:"round,omitempty"`
	Text         string    `json:"text,omitempty"`
	At           time.Time `json:"at"`
}
