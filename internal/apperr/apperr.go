// Package apperr defines the machine-readable error codes shared by the
// room repository, room service, and websocket dispatcher.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind, sent to clients in error payloads.
type Code string

const (
	ValidationError       Code = "VALIDATION_ERROR"
	Unauthenticated       Code = "UNAUTHENTICATED"
	AuthFailed            Code = "AUTH_FAILED"
	AuthExpired           Code = "AUTH_EXPIRED"
	AuthTimeout           Code = "AUTH_TIMEOUT"
	RoomNotFound          Code = "ROOM_NOT_FOUND"
	RoomAccessDenied      Code = "ROOM_ACCESS_DENIED"
	RoomClosed            Code = "ROOM_CLOSED"
	RoomInGame            Code = "ROOM_IN_GAME"
	RoomFull              Code = "ROOM_FULL"
	RequestInProgress     Code = "REQUEST_IN_PROGRESS"
	CodeGenerationFailed  Code = "CODE_GENERATION_FAILED"
	NotInRoom             Code = "NOT_IN_ROOM"
	NotHost               Code = "NOT_HOST"
	BadPhase              Code = "BAD_PHASE"
	IllegalMove           Code = "ILLEGAL_MOVE"
	InternalError         Code = "INTERNAL_ERROR"
	InvalidMessage        Code = "INVALID_MESSAGE"
)

// Error is an application-level error carrying a machine code alongside a
// human-readable message. Handlers translate it directly into an `error`
// or `game_error` wire payload.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}

// CodeOf extracts the machine code from err, defaulting to InternalError
// for anything that isn't an *Error — mirrors the teacher's convention of
// wrapping every DB/IO failure and never leaking raw errors to clients.
func CodeOf(err error) Code {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return InternalError
}
