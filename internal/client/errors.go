package client

import (
	"errors"
	"fmt"
)

// Kind is the closed set of upstream failure kinds. Every Kind maps to exactly
// one HTTP status at the transport boundary.
type Kind int

const (
	KindInvalidAPIKey Kind = iota + 1
	KindCityNotFound
	KindUpstreamTimeout
	KindUpstreamUnavailable
	KindInvalidResponse
)

// Kinds lists every Kind, in declaration order.
var Kinds = []Kind{
	KindInvalidAPIKey,
	KindCityNotFound,
	KindUpstreamTimeout,
	KindUpstreamUnavailable,
	KindInvalidResponse,
}

func (k Kind) String() string {
	switch k {
	case KindInvalidAPIKey:
		return "InvalidAPIKey"
	case KindCityNotFound:
		return "CityNotFound"
	case KindUpstreamTimeout:
		return "UpstreamTimeout"
	case KindUpstreamUnavailable:
		return "UpstreamUnavailable"
	case KindInvalidResponse:
		return "InvalidResponse"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Code returns the stable error code used in HTTP error bodies.
func (k Kind) Code() string {
	switch k {
	case KindInvalidAPIKey:
		return "INVALID_API_KEY"
	case KindCityNotFound:
		return "CITY_NOT_FOUND"
	case KindUpstreamTimeout:
		return "UPSTREAM_TIMEOUT"
	case KindUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	case KindInvalidResponse:
		return "INVALID_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Error is an upstream failure of a known Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrCityNotFound)
// holds for every city-not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidAPIKey       = &Error{Kind: KindInvalidAPIKey, Message: "invalid API key"}
	ErrCityNotFound        = &Error{Kind: KindCityNotFound, Message: "city not found"}
	ErrUpstreamTimeout     = &Error{Kind: KindUpstreamTimeout, Message: "upstream timeout"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Message: "upstream unavailable"}
	ErrInvalidResponse     = &Error{Kind: KindInvalidResponse, Message: "invalid upstream response"}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
