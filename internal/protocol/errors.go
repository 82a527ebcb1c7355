package protocol

// Error codes from SPEC_FULL.md §6/§7. Handlers never return a raw Go
// error across the router boundary — every failure surfaces as one of
// these, matching the teacher's structured {code, message} connection
// errors.
const (
	CodeInvalidMethod        = "INVALID_METHOD"
	CodeInvalidParams        = "INVALID_PARAMS"
	CodeInvalidClient        = "INVALID_CLIENT"
	CodeInvalidTable         = "INVALID_TABLE"
	CodeNoReplayTable        = "NO_REPLAY_TABLE"
	CodeReplayActive         = "REPLAY_ACTIVE"
	CodeReplayAlreadyActive  = "REPLAY_ALREADY_ACTIVE"
	CodeDataSourceError      = "DATA_SOURCE_ERROR"
	CodeReplayError          = "REPLAY_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Error is the wire-level {code, message} error shape. It implements the
// error interface so handler code can return it directly.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError builds a protocol Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
