package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"curator/api/internal/gateway"
	"curator/api/internal/schedule"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates service errors into the HTTP error taxonomy.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.Is(err, schedule.ErrNoActiveSeries):
		return http.StatusUnprocessableEntity, "NO_ACTIVE_SERIES", "No active series", nil
	case errors.Is(err, schedule.ErrEmptyBacklog):
		return http.StatusUnprocessableEntity, "EMPTY_BACKLOG", "Backlog is empty", nil
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Item not found", nil
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Upstream collection API unavailable", nil
	case errors.Is(err, gateway.ErrUpstreamRejected):
		return http.StatusBadGateway, "UPSTREAM_REJECTED", "Upstream collection API rejected the request", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Upstream request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
