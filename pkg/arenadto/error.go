package arenadto

import "errors"

// DomainError is the error value exposed to callers of the core. Code is
// stable and machine readable; Message is a default text.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}

// Is matches by Code so a copy with a custom Message still satisfies errors.Is.
func (e DomainError) Is(target error) bool {
	t, ok := target.(DomainError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidMove              = DomainError{Code: "invalid_move", Message: "invalid move"}
	ErrNotYourTurn              = DomainError{Code: "not_your_turn", Message: "not your turn"}
	ErrNotAPlayer               = DomainError{Code: "not_a_player", Message: "not a player in this game"}
	ErrInvalidTransition        = DomainError{Code: "invalid_transition", Message: "action not allowed in current state"}
	ErrInsufficientParticipants = DomainError{Code: "insufficient_participants", Message: "at least two participants required"}
	ErrNotFound                 = DomainError{Code: "not_found", Message: "record not found"}
	ErrConflict                 = DomainError{Code: "conflict", Message: "concurrent update detected, try again", Retryable: true}
	ErrStalePosition            = DomainError{Code: "stale_position", Message: "move is not based on the current position", Retryable: true}
	ErrAlreadyQueued            = DomainError{Code: "already_queued", Message: "player already has a waiting ticket"}
	ErrUnsupportedTimeControl   = DomainError{Code: "unsupported_time_control", Message: "time control not offered"}
	ErrNotOrganizer             = DomainError{Code: "not_organizer", Message: "only the organizer may do this"}
	ErrInvalidArgs              = DomainError{Code: "invalid_args", Message: "invalid arguments"}
)

// Code extracts the DomainError code from err, or "" for other errors.
func Code(err error) string {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
