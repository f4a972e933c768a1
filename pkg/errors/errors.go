package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeDuplicate         Code = "DUPLICATE_KEY"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeUnavailable       Code = "PRODUCT_UNAVAILABLE"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeAlreadyPaid       Code = "ALREADY_PAID"
	CodePaymentFailed     Code = "PAYMENT_FAILED"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	badRequest = http.StatusBadRequest
	serverFail = http.StatusInternalServerError
)

// metadataByCode is the public face of every code. Codes with
// DetailsAllowed may echo their details to the client.
var metadataByCode = map[Code]Metadata{
	CodeValidation:        {HTTPStatus: badRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeDuplicate:         {HTTPStatus: badRequest, PublicMessage: "duplicate value", DetailsAllowed: true},
	CodeConflict:          {HTTPStatus: badRequest, PublicMessage: "conflict detected"},
	CodeStateConflict:     {HTTPStatus: badRequest, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeInsufficientStock: {HTTPStatus: badRequest, PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeUnavailable:       {HTTPStatus: badRequest, PublicMessage: "product unavailable", DetailsAllowed: true},
	CodeEmptyCart:         {HTTPStatus: badRequest, PublicMessage: "cart is empty"},
	CodeAlreadyPaid:       {HTTPStatus: badRequest, PublicMessage: "order already paid"},
	CodePaymentFailed:     {HTTPStatus: badRequest, PublicMessage: "payment failed", DetailsAllowed: true},
	CodeIdempotency:       {HTTPStatus: badRequest, PublicMessage: "idempotency key reused", DetailsAllowed: true},

	CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:    {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeRateLimit:    {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},

	CodeInternal:   {HTTPStatus: serverFail, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency: {HTTPStatus: serverFail, Retryable: true, PublicMessage: "dependency unavailable"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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

// WithDetails attaches client-visible details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the first typed error in the chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Duplicate builds a DUPLICATE_KEY error naming the offending field.
func Duplicate(field, message string) *Error {
	return New(CodeDuplicate, message).WithDetails(map[string]string{"field": field})
}
