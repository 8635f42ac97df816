package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation   = Kind("Validation")   // malformed input, duplicate natural keys
	KindNotFound     = Kind("NotFound")     // referenced entity absent
	KindBusinessRule = Kind("BusinessRule") // well-formed request the current state does not allow
	KindConflict     = Kind("Conflict")     // concurrent write lost the version race
	KindUnauthorized = Kind("Unauthorized")
	KindForbidden    = Kind("Forbidden")
	KindInternal     = Kind("Internal")
)

// Key is a stable machine-readable error code.
type Key string

const (
	ErrorValidation         = Key("ErrorValidation")
	ErrorDuplicateKey       = Key("ErrorDuplicateKey")
	ErrorNotFound           = Key("ErrorNotFound")
	ErrorIDExhausted        = Key("ErrorIDExhausted")
	ErrorVersionConflict    = Key("ErrorVersionConflict")
	ErrorInternal           = Key("ErrorInternal")
	ErrorAlreadyDecided     = Key("ErrorWarrantyAlreadyDecided")
	ErrorNotApproved        = Key("ErrorWarrantyNotApproved")
	ErrorExpired            = Key("ErrorWarrantyExpired")
	ErrorInstallmentPaid    = Key("ErrorInstallmentAlreadyPaid")
	ErrorMissingEvidence    = Key("ErrorClaimMissingEvidence")
	ErrorClaimClosed        = Key("ErrorClaimClosed")
	ErrorInvalidReturn      = Key("ErrorClaimInvalidReturnMethod")
	ErrorBadCredentials     = Key("ErrorBadCredentials")
	ErrorAccountLocked      = Key("ErrorAccountLocked")
	ErrorAccountDisabled    = Key("ErrorAccountDisabled")
	ErrorNotAuthorized      = Key("ErrorNotAuthorized")
	ErrorInvalidRequestBody = Key("ErrorInvalidRequestBody")
)

// Error carries a Kind and Key alongside the underlying error.
type Error struct {
	Err  error
	Kind Kind
	Key  Key
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Key)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, key Key, err error) *Error {
	return &Error{Err: err, Kind: kind, Key: key}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, ErrorValidation, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, ErrorNotFound, fmt.Errorf(format, args...))
}

func Rule(key Key, format string, args ...any) *Error {
	return New(KindBusinessRule, key, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, ErrorVersionConflict, fmt.Errorf(format, args...))
}

func Internal(err error) *Error {
	return New(KindInternal, ErrorInternal, err)
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error with the given key.
func Is(err error, key Key) bool {
	var e *Error
	return errors.As(err, &e) && e.Key == key
}

// HTTPStatus maps an error onto a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of an error response. Internal details are hidden.
type Body struct {
	Key     Key    `json:"key"`
	Message string `json:"message"`
}

// ToBody converts err for a response.
func ToBody(err error) Body {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return Body{Key: e.Key, Message: "internal error"}
		}
		return Body{Key: e.Key, Message: e.Error()}
	}
	return Body{Key: ErrorInternal, Message: "internal error"}
}
