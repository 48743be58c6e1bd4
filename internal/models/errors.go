package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("order validation failed")
	ErrRiskLimit     = errors.New("risk limit exceeded")
	ErrExchange      = errors.New("exchange call failed")
	ErrUnknownSignal = errors.New("unknown signal")
	ErrSignalIgnored = errors.New("signal ignored")

	ErrLimitExceeded     = fmt.Errorf("%w: open positions", ErrRiskLimit)
	ErrDailyLossExceeded = fmt.Errorf("%w: daily loss", ErrRiskLimit)

	ErrSignalNotFound   = errors.New("signal not found or expired")
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionExists   = errors.New("position already open")
)

// ErrorKind maps an error to a short label for metrics and operator messages.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrRiskLimit):
		return "risk_limit"
	case errors.Is(err, ErrExchange):
		return "exchange"
	case errors.Is(err, ErrUnknownSignal):
		return "unknown_signal"
	case errors.Is(err, ErrSignalIgnored):
		return "ignored"
	default:
		return "internal"
	}
}
