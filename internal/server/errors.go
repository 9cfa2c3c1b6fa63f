package server

import (
	"context"
	"errors"
	"strings"

	"VaultLedger/internal/vault"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errClockOverrideDisabled = errors.New("last update time override is disabled")

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var te *vault.TransferError
	code := codes.Internal
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, vault.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, vault.ErrOverflow):
		code = codes.OutOfRange
	case errors.Is(err, vault.ErrZeroAmount):
		code = codes.InvalidArgument
	case errors.Is(err, vault.ErrAlreadyInitialized), errors.Is(err, vault.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, vault.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, vault.ErrClockSkew), errors.Is(err, errClockOverrideDisabled):
		code = codes.FailedPrecondition
	case errors.As(err, &te):
		code = codes.Aborted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// FromStatus maps a status returned by the vault service back onto the
// domain sentinel, so clients can match with errors.Is.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	for _, sentinel := range []error{
		vault.ErrUnauthorized,
		vault.ErrInsufficientFunds,
		vault.ErrOverflow,
		vault.ErrZeroAmount,
		vault.ErrAlreadyInitialized,
		vault.ErrDuplicateRequest,
		vault.ErrNotFound,
		vault.ErrClockSkew,
	} {
		if status.Code(toStatus(sentinel)) == st.Code() && strings.Contains(st.Message(), sentinel.Error()) {
			return &remoteError{status: st, sentinel: sentinel}
		}
	}
	return err
}

type remoteError struct {
	status   *status.Status
	sentinel error
}

func (e *remoteError) Error() string             { return e.status.Message() }
func (e *remoteError) Unwrap() error             { return e.sentinel }
func (e *remoteError) GRPCStatus() *status.Status { return e.status }
