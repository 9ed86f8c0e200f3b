// Package server holds the sentinel errors for session and room operations.
// Each sentinel maps onto a wire error code; all of them are soft failures
// answered with an error envelope while the connection stays open.
package server

import (
	"errors"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

var (
	ErrInvalidName   = errors.New("invalid display name")
	ErrNameTaken     = errors.New("display name already connected")
	ErrDuplicateName = errors.New("display name already present in room")
	ErrNotMember     = errors.New("not a member of room")
	ErrNotLoggedIn   = errors.New("login required")
	ErrLoggedIn      = errors.New("already logged in")
	ErrViolation     = errors.New("envelope type not valid in current state")
	ErrBlankBody     = errors.New("message body is blank")
)

// wireCode maps a dispatch error onto the code carried by the error envelope.
func wireCode(err error) string {
	var decodeErr *protocol.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return decodeErr.Code()
	case errors.Is(err, ErrInvalidName):
		return protocol.CodeInvalidName
	case errors.Is(err, ErrNameTaken):
		return protocol.CodeNameTaken
	case errors.Is(err, ErrDuplicateName):
		return protocol.CodeDuplicate
	case errors.Is(err, ErrNotMember):
		return protocol.CodeNotMember
	case errors.Is(err, ErrNotLoggedIn):
		return protocol.CodeNotLoggedIn
	case errors.Is(err, ErrLoggedIn):
		return protocol.CodeLoggedIn
	case errors.Is(err, ErrViolation):
		return protocol.CodeViolation
	case errors.Is(err, ErrBlankBody):
		return protocol.CodeMissingField
	default:
		return protocol.CodeIOFailure
	}
}
