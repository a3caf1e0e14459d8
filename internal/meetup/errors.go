package meetup

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups business errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimit
	KindBlacklisted
	KindAlreadyChecked
	KindIncompleteRollCall
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindBlacklisted:
		return "blacklisted"
	case KindAlreadyChecked:
		return "already_checked"
	case KindIncompleteRollCall:
		return "incomplete_roll_call"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is an expected rule violation. Two errors match under errors.Is when
// their codes are equal, so a sentinel still matches after its message has
// been specialised with WithMessage.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation = newError(KindValidation, "VALIDATION", "invalid request")

	ErrUserNotFound        = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrIdentityConflict    = newError(KindConflict, "IDENTITY_CONFLICT", "profile is being created concurrently")
	ErrNicknameRateLimited = newError(KindRateLimit, "NICKNAME_RATE_LIMITED", "nickname can only be changed once every 30 days")

	ErrRoomNotFound    = newError(KindNotFound, "ROOM_NOT_FOUND", "room not found")
	ErrNotHost         = newError(KindForbidden, "NOT_HOST", "only the host can do that")
	ErrAlreadyHosting  = newError(KindConflict, "ALREADY_HOSTING", "already hosting an active meetup")
	ErrCapacity        = newError(KindConflict, "CAPACITY", "already participating in 2 meetups")
	ErrAlreadyJoined   = newError(KindConflict, "ALREADY_JOINED", "already participating in this meetup")
	ErrRoomFull        = newError(KindConflict, "ROOM_FULL", "meetup is full")
	ErrBlacklisted     = newError(KindBlacklisted, "BLACKLISTED", "you were removed from this meetup")
	ErrRoomEnded       = newError(KindConflict, "ROOM_ENDED", "meetup has ended")
	ErrHostCannotLeave = newError(KindForbidden, "HOST_CANNOT_LEAVE", "host cannot leave before the meetup ends, deactivate it instead")
	ErrNotParticipant  = newError(KindForbidden, "NOT_PARTICIPANT", "not a participant of this meetup")

	ErrTooLate            = newError(KindRateLimit, "TOO_LATE", "attendance must be checked before the meetup starts")
	ErrAlreadyChecked     = newError(KindAlreadyChecked, "ALREADY_CHECKED", "attendance has already been checked")
	ErrIncompleteRollCall = newError(KindIncompleteRollCall, "INCOMPLETE_ROLL_CALL", "every participant must be marked")

	ErrSelfRating           = newError(KindValidation, "SELF_RATING", "cannot rate yourself")
	ErrDuplicateRating      = newError(KindConflict, "DUPLICATE_RATING", "already rated this participant")
	ErrAttendanceNotChecked = newError(KindConflict, "ATTENDANCE_NOT_CHECKED", "attendance has not been checked yet")
	ErrTargetNotAttended    = newError(KindForbidden, "TARGET_NOT_ATTENDED", "that participant did not attend")
	ErrRaterNotAttended     = newError(KindForbidden, "RATER_NOT_ATTENDED", "only attendees can rate")
)

func validationError(format string, args ...any) *Error {
	return ErrValidation.WithMessage(format, args...)
}

// HTTPStatus is the status code reported to clients for err. Errors that are
// not an *Error are internal.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindBlacklisted:
		return http.StatusForbidden
	case KindConflict, KindAlreadyChecked:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindIncompleteRollCall:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
