// Package apperr classifies checkout failures so transports can map them to
// status codes without inspecting storage or gateway errors.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPaymentGateway    Kind = "payment_gateway"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// Error is a classified error. Message is safe to show to clients; Err holds
// the underlying cause, which is only exposed outside production.
type Error struct {
	Kind    Kind
	Message string
	OrderID int64
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func SignatureMismatch() *Error {
	return &Error{Kind: KindSignatureMismatch, Message: "invalid signature"}
}

// PaymentGateway wraps an upstream gateway failure. orderID identifies the
// Pending order the client can retry intent issuance for.
func PaymentGateway(orderID int64, err error) *Error {
	return &Error{Kind: KindPaymentGateway, Message: "payment gateway unavailable", OrderID: orderID, Err: err}
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

var kindToStatus = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindPaymentGateway:    http.StatusBadGateway,
	KindSignatureMismatch: http.StatusBadRequest,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindTimeout:           http.StatusGatewayTimeout,
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if KindOf(err) == KindTimeout {
		return "request timed out"
	}
	return "internal server error"
}
