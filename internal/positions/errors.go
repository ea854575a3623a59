package positions

import (
	"errors"
	"fmt"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// ValidationError rejects a RecordBuy request before anything is written
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Error codes reported on unavailable inventory rows
const (
	CodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	CodeUnknownTicker       = "UNKNOWN_TICKER"
	CodeInvalidHistory      = "INVALID_HISTORY"
	CodeUnknownStrategy     = "UNKNOWN_STRATEGY"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// ErrorCode maps a per-position failure to a stable code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientHistory):
		return CodeInsufficientHistory
	case errors.Is(err, models.ErrUnknownTicker):
		return CodeUnknownTicker
	case errors.Is(err, models.ErrInvalidHistory):
		return CodeInvalidHistory
	case errors.Is(err, models.ErrUnknownStrategy):
		return CodeUnknownStrategy
	default:
		return CodeProviderUnavailable
	}
}
