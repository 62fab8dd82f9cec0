package ledger

import (
	"errors"
	"fmt"

	"meetings-backend/internal/storage"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidCost         = errors.New("cost must be positive")
	ErrUnavailable         = errors.New("ledger unavailable")
)

// UnavailableError reports that the balance could not be read or written.
// Whether a write landed is unknown, so callers must not assume the balance
// is unchanged.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger unavailable: %s: %v", e.Reason, e.Err)
	}
	return "ledger unavailable: " + e.Reason
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(reason string, err error) error {
	return &UnavailableError{Reason: reason, Err: err}
}

// Translate maps storage failures onto ledger errors. Insufficient tokens
// becomes ErrInsufficientBalance and anything unexpected becomes
// *UnavailableError.
func Translate(reason string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInsufficientTokens):
		return ErrInsufficientBalance
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrUnavailable), errors.Is(err, ErrNotAuthenticated):
		return err
	}
	return unavailable(reason, err)
}
