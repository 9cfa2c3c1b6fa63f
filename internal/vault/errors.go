package vault

import (
	"errors"
	"fmt"

	fpmath "VaultLedger/internal/math"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds for withdrawal")
	ErrOverflow          = fpmath.ErrOverflow
	ErrZeroAmount        = errors.New("zero amount")

	ErrAlreadyInitialized = errors.New("record already initialized")
	ErrNotFound           = errors.New("record not found")
	ErrClockSkew          = errors.New("last update time is in the future")
	ErrDuplicateRequest   = errors.New("duplicate request")
)

// TransferError wraps a failure reported by the asset-transfer service.
// When it is returned no ledger change was committed.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: transfer failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a stable label for err, used for metrics and logs.
func ErrorKind(err error) string {
	var te *TransferError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrClockSkew):
		return "clock_skew"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.As(err, &te):
		return "transfer_failed"
	default:
		return "internal"
	}
}
