package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, machine-readable error identifier returned to clients.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeAuthenticationFailed  Code = "AUTHENTICATION_FAILED"
	CodeMalformedEvent        Code = "MALFORMED_EVENT"
	CodeOrderNotFound         Code = "ORDER_NOT_FOUND"
	CodeSessionCreationFailed Code = "SESSION_CREATION_FAILED"
	CodeNotificationFailed    Code = "NOTIFICATION_FAILED"
)

// Class is how a code surfaces over HTTP and to retrying callers. Public
// replaces the error's own message unless EchoMessage is set.
type Class struct {
	Status      int
	Retryable   bool
	Public      string
	EchoMessage bool
	ShowDetails bool
}

// Fields: status, retryable, public message, echo message, show details.
// Unknown orders stay retryable because ids come from our own session
// creation, so a miss is replication lag or a forged id.
var classes = map[Code]Class{
	CodeValidation:            {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:          {http.StatusUnauthorized, false, "authentication required", true, false},
	CodeForbidden:             {http.StatusForbidden, false, "access denied", true, false},
	CodeNotFound:              {http.StatusNotFound, false, "resource not found", true, false},
	CodeConflict:              {http.StatusConflict, false, "conflict detected", true, false},
	CodeStateConflict:         {http.StatusUnprocessableEntity, false, "state transition disallowed", true, true},
	CodeIdempotency:           {http.StatusConflict, false, "idempotency key reused", true, true},
	CodeRateLimit:             {http.StatusTooManyRequests, true, "too many requests", true, false},
	CodeInternal:              {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:            {http.StatusServiceUnavailable, true, "dependency unavailable", false, true},
	CodeAuthenticationFailed:  {http.StatusUnauthorized, false, "invalid signature", false, false},
	CodeMalformedEvent:        {http.StatusBadRequest, false, "malformed event", true, true},
	CodeOrderNotFound:         {http.StatusNotFound, true, "order not found", false, false},
	CodeSessionCreationFailed: {http.StatusBadGateway, true, "payment could not be started", false, true},
	CodeNotificationFailed:    {http.StatusInternalServerError, true, "internal server error", false, false},
}

// ClassOf returns the class for code, treating unknown codes as internal.
func ClassOf(code Code) Class {
	if c, ok := classes[code]; ok {
		return c
	}
	return classes[CodeInternal]
}

// PublicMessage is the text a client may see for e.
func (c Class) PublicMessage(e *Error) string {
	if c.EchoMessage && e.Message() != "" {
		return e.Message()
	}
	return c.Public
}

// Error is a coded error carrying optional client-safe details and a cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
