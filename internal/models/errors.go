package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientHistory means fewer trailing bars than the exit rule needs
	ErrInsufficientHistory = errors.New("insufficient price history")
	// ErrUnknownTicker means the price provider returned no data at all
	ErrUnknownTicker = errors.New("unknown ticker")
	// ErrInvalidHistory means bars were out of order or duplicated
	ErrInvalidHistory = errors.New("invalid price history")
	// ErrUnknownStrategy means a strategy tag outside BASIC/ADD
	ErrUnknownStrategy = errors.New("unknown strategy type")
	// ErrNotFound means no position exists with the requested id
	ErrNotFound = errors.New("position not found")
	// ErrAlreadySold means the position was already marked sold
	ErrAlreadySold = errors.New("position already sold")
)

// TransientError wraps a timeout or I/O failure talking to the store or a
// price backend. Callers may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError unless it is nil or already one
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is, or wraps, a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
