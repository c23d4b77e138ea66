package matchmaking

import (
    "time"

    "github.com/park285/cheese-arena/internal/session"
)

// TicketStatus represents the lifecycle of a queue ticket.
type TicketStatus string

const (
    TicketWaiting   TicketStatus = "waiting"
    TicketMatched   TicketStatus = "matched"
    TicketCancelled TicketStatus = "cancelled"
)

// Ticket is stored as JSON in Redis under arena:mm:ticket:<id>.
type Ticket struct {
    ID          string       `json:"id"`
    PlayerID    string       `json:"player_id"`
    Name        string       `json:"name,omitempty"`
    Rating      int          `json:"rating,omitempty"`
    Games       int          `json:"games,omitempty"`
    TimeControl int          `json:"time_control"`
    Increment   int          `json:"increment"`
    Status      TicketStatus `json:"status"`
    SessionID   string       `json:"session_id,omitempty"`
    OpponentID  string       `json:"opponent_id,omitempty"`
    CreatedAt   time.Time    `json:"created_at"`
    MatchedAt   *time.Time   `json:"matched_at,omitempty"`
    CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
}

// JoinRequest asks for a game at TimeControl minutes plus Increment seconds.
type JoinRequest struct {
    PlayerID    string
    Name        string
    Rating      int
    Games       int
    TimeControl int
    Increment   int
}

// JoinResult is either Matched with the new session, or waiting on Ticket.
type JoinResult struct {
    Matched bool
    Ticket  *Ticket
    Session *session.Session
}
