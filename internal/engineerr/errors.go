// Package engineerr is the exchange engine's typed error taxonomy, in the
// manner of the wider codebase's structured errors: a stable code, a
// message, and optional context, wrapped so errors.Is/errors.As keep
// working at call sites. None of this crosses the wire directly — the
// Order Manager returns these errors and the wire dispatcher translates
// them into the numeric response codes the session layer forwards to
// clients.
package engineerr

import "fmt"

// Code identifies a class of engine-level failure.
type Code string

const (
	CodeInvalidSide       Code = "INVALID_SIDE"
	CodeInvalidSize       Code = "INVALID_SIZE"
	CodeInvalidPrice      Code = "INVALID_PRICE"
	CodeInvalidStopPrice  Code = "INVALID_STOP_PRICE"
	CodeInsufficientDepth Code = "INSUFFICIENT_LIQUIDITY"
	CodeOrderNotFound     Code = "ORDER_NOT_FOUND"
	CodeForeignOrder      Code = "FOREIGN_ORDER"
	CodeAlreadyFilled     Code = "ALREADY_FILLED"
	CodeInvalidMonth      Code = "INVALID_MONTH_FORMAT"
	CodeInvalidThreshold  Code = "INVALID_THRESHOLD"
)

// Error is an engine-level structured error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Is allows errors.Is(err, engineerr.New(code, "")) style comparisons by
// code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
