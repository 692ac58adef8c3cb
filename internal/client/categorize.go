package client

import (
	"context"
	"errors"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryCityNotFound  ErrorCategory = "city_not_found"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if kind, ok := KindOf(err); ok {
		switch kind {
		case KindInvalidAPIKey:
			return ErrorCategoryInvalidAPIKey
		case KindCityNotFound:
			return ErrorCategoryCityNotFound
		case KindUpstreamTimeout:
			return ErrorCategoryTimeout
		case KindUpstreamUnavailable:
			return ErrorCategoryNetwork
		case KindInvalidResponse:
			return ErrorCategoryParsing
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}
