package table

import "errors"

// Error is a player-facing rejection. Table state is unchanged when one is
// returned. Code is stable and sent on the wire.
type Error struct {
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrHandNotStarted    = &Error{Code: "hand_not_started", msg: "table: no hand in progress"}
	ErrHandInProgress    = &Error{Code: "hand_in_progress", msg: "table: hand already in progress"}
	ErrNotYourTurn       = &Error{Code: "not_your_turn", msg: "table: not your turn"}
	ErrEmptyAction       = &Error{Code: "empty_action", msg: "table: empty action"}
	ErrUnknownAction     = &Error{Code: "unknown_action", msg: "table: unknown action"}
	ErrInvalidAmount     = &Error{Code: "invalid_amount", msg: "table: invalid amount"}
	ErrInsufficientChips = &Error{Code: "insufficient_chips", msg: "table: insufficient chips"}
	ErrMustCall          = &Error{Code: "must_call", msg: "table: cannot check, must call"}
	ErrBetTooSmall       = &Error{Code: "bet_too_small", msg: "table: bet does not exceed the current bet"}
	ErrNoPlayers         = &Error{Code: "no_players", msg: "table: no players to deal"}
	ErrPlayerNotSeated   = &Error{Code: "not_seated", msg: "table: player not seated"}
)

// InternalReasonCode is reported for anything that is not a rejection.
const InternalReasonCode = "internal_error"

// ReasonCode maps err to its wire reason code.
func ReasonCode(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return InternalReasonCode
}

// IsRejection reports whether err is a validation failure rather than an
// internal fault.
func IsRejection(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
