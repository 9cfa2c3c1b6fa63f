package vault

import (
	"context"
	"fmt"
	"time"

	"VaultLedger/internal/transfer"

	"github.com/google/uuid"
)

// Effect is an external side effect bound to a record update.
type Effect func(ctx context.Context) error

// Change is the side effect a mutation binds to its record update. Apply runs
// after the new record is staged and before it is written; an Apply error
// discards the update. Revert undoes Apply when the write then fails.
type Change struct {
	Apply  Effect
	Revert Effect
}

// Run applies c around write, the durable write of the staged record. Stores
// call it with the record still locked. A nil Change only writes.
func (c *Change) Run(ctx context.Context, write func() error) error {
	if c == nil || c.Apply == nil {
		return write()
	}
	if err := c.Apply(ctx); err != nil {
		return err
	}
	if err := write(); err != nil {
		if c.Revert != nil {
			// The write may have failed on ctx itself.
			if rerr := c.Revert(context.WithoutCancel(ctx)); rerr != nil {
				panic(fmt.Sprintf("FATAL: revert side effect after failed write (%v): %v", err, rerr))
			}
		}
		return err
	}
	return nil
}

// OracleMutation edits a private copy of the oracle. Returning an error
// leaves the stored oracle untouched.
type OracleMutation func(o *PriceOracle) (*Change, error)

// LedgerMutation edits a private copy of a ledger. Returning an error leaves
// the stored ledger untouched.
type LedgerMutation func(l *DepositLedger) (*Change, error)

// Store persists the oracle singleton and ledgers keyed by owner. Every
// Update is one atomic read-modify-write on one record; updates to different
// ledgers do not block each other.
type Store interface {
	CreateOracle(ctx context.Context, o PriceOracle) error
	GetOracle(ctx context.Context) (PriceOracle, error)
	UpdateOracle(ctx context.Context, fn OracleMutation) (PriceOracle, error)

	CreateLedger(ctx context.Context, l DepositLedger) error
	GetLedger(ctx context.Context, owner uuid.UUID) (DepositLedger, error)
	UpdateLedger(ctx context.Context, owner uuid.UUID, fn LedgerMutation) (DepositLedger, error)
}

// TransferService applies a batch of transfer, mint and burn legs
// all-or-nothing.
type TransferService interface {
	Apply(ctx context.Context, batch *transfer.Batch) error
}

// Clock supplies the current time in unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}
