package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the reply shown to the acting user.
type Kind int

const (
	External Kind = iota
	PermissionDenied
	ForbiddenTarget
	InvalidInput
	NotFound
	AlreadyInState
	InvalidState
	LimitExceeded
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case ForbiddenTarget:
		return "forbidden_target"
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case AlreadyInState:
		return "already_in_state"
	case InvalidState:
		return "invalid_state"
	case LimitExceeded:
		return "limit_exceeded"
	default:
		return "external"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so sentinels
// survive errors.Is after being wrapped.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Message == e.Message && other.Err == nil
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the first classified error in the chain.
// Unclassified errors are External.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return External
}

const genericMessage = "Something went wrong while processing this request. Please try again later."

// UserMessage returns the text safe to show in a reply.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == External || e.Message == "" {
		return genericMessage
	}
	return e.Message
}

var (
	ErrPermissionDenied = New(PermissionDenied, "You need Administrator permission to use this command.")
	ErrSelfTarget       = New(ForbiddenTarget, "You cannot perform this action on yourself.")
	ErrBotTarget        = New(ForbiddenTarget, "This action cannot target the bot.")
	ErrProtectedTarget  = New(ForbiddenTarget, "This user holds administrator privileges and cannot be moderated.")
	ErrNotModeratable   = New(ForbiddenTarget, "This user cannot be moderated; their role is higher than the bot's.")
	ErrNotInGuild       = New(NotFound, "That user is not a member of this server.")
	ErrUserNotFound     = New(NotFound, "User not found.")
	ErrInvalidUserID    = New(InvalidInput, "Invalid user ID. Provide a valid Discord user ID.")
	ErrInvalidDuration  = New(InvalidInput, "Invalid duration. Use a number followed by s, m, h or d (max 28 days).")
	ErrInvalidExpiry    = New(InvalidInput, "Invalid expiry. Use a number followed by s, m, h, d, M or y.")
	ErrInvalidAmount    = New(InvalidInput, "Amount must be between 1 and 100.")
	ErrInvalidWindow    = New(InvalidInput, "The older-than date must be more recent than the newer-than date.")
	ErrAlreadyBanned    = New(AlreadyInState, "This user is already banned.")
	ErrNotBanned        = New(NotFound, "This user is not banned.")
	ErrNotTimedOut      = New(AlreadyInState, "This user is not timed out.")
	ErrWarningNotFound  = New(NotFound, "Warning not found.")
	ErrWarningInactive  = New(AlreadyInState, "This warning has already been removed.")
	ErrTicketNotFound   = New(NotFound, "This channel is not a ticket.")
	ErrLimitExceeded    = New(LimitExceeded, "You have reached the maximum number of open tickets.")
	ErrInvalidState     = New(InvalidState, "This ticket is not in a state that allows this action.")
	ErrUnknownCategory  = New(InvalidInput, "Unknown ticket category.")
	ErrUnknownComponent = New(InvalidInput, "This interaction is not recognised.")
	ErrTooFast          = New(AlreadyInState, "Your previous request is still being processed.")
)
