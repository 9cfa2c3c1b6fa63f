package vault

import (
	"context"
	"errors"
	"fmt"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/transfer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine runs the vault operations against a record store and a transfer
// service. It holds no mutable state of its own; all serialization happens in
// the store, one record at a time.
type Engine struct {
	store     Store
	transfers TransferService
	clock     Clock
	logger    zerolog.Logger
}

func NewEngine(store Store, transfers TransferService, clock Clock, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		store:     store,
		transfers: transfers,
		clock:     clock,
		logger:    logger.With().Str("component", "vault").Logger(),
	}
}

// Clock returns the engine's time source.
func (e *Engine) Clock() Clock {
	return e.clock
}

// InitializeOracle creates the oracle with rate 1.0 and administrator admin.
func (e *Engine) InitializeOracle(ctx context.Context, admin uuid.UUID) (PriceOracle, error) {
	oracle := PriceOracle{
		Administrator:  admin,
		Rate:           fpmath.RateScale,
		LastUpdateTime: e.clock.Now(),
		Version:        1,
	}
	if err := e.store.CreateOracle(ctx, oracle); err != nil {
		return PriceOracle{}, fmt.Errorf("initialize oracle: %w", err)
	}

	e.logger.Info().
		Str("administrator", admin.String()).
		Int64("last_update_time", oracle.LastUpdateTime).
		Msg("oracle initialized")
	return oracle, nil
}

// InitializeLedger creates an empty ledger for owner.
func (e *Engine) InitializeLedger(ctx context.Context, owner uuid.UUID) (DepositLedger, error) {
	ledger := DepositLedger{Owner: owner, Version: 1}
	if err := e.store.CreateLedger(ctx, ledger); err != nil {
		return DepositLedger{}, fmt.Errorf("initialize ledger %s: %w", owner, err)
	}

	e.logger.Debug().Str("owner", owner.String()).Msg("ledger initialized")
	return ledger, nil
}

// UpdatePrice accrues interest for the time elapsed since the last update.
// Only the oracle administrator may call it.
func (e *Engine) UpdatePrice(ctx context.Context, caller uuid.UUID) (PriceUpdate, error) {
	now := e.clock.Now()
	var update PriceUpdate

	committed, err := e.store.UpdateOracle(ctx, func(o *PriceOracle) (*Change, error) {
		if caller != o.Administrator {
			return nil, ErrUnauthorized
		}
		if now < o.LastUpdateTime {
			return nil, fmt.Errorf("%w: now=%d last_update_time=%d", ErrClockSkew, now, o.LastUpdateTime)
		}

		elapsed := uint64(now - o.LastUpdateTime)
		rate, err := fpmath.GrowRate(o.Rate, elapsed)
		if err != nil {
			return nil, err
		}

		update = PriceUpdate{PreviousRate: o.Rate, Rate: rate, Elapsed: elapsed}
		o.Rate = rate
		o.LastUpdateTime = now
		o.Version++
		return nil, nil
	})
	if err != nil {
		return PriceUpdate{}, fmt.Errorf("update price: %w", err)
	}

	update.LastUpdateTime = committed.LastUpdateTime
	update.Version = committed.Version

	e.logger.Info().
		Uint64("previous_rate", update.PreviousRate).
		Uint64("rate", update.Rate).
		Uint64("elapsed", update.Elapsed).
		Msg("price updated")
	return update, nil
}

// SetLastUpdateTime overwrites the oracle's last update time without touching
// the rate. Administrator only; used to backdate the oracle in drills.
func (e *Engine) SetLastUpdateTime(ctx context.Context, caller uuid.UUID, ts int64) (PriceOracle, error) {
	committed, err := e.store.UpdateOracle(ctx, func(o *PriceOracle) (*Change, error) {
		if caller != o.Administrator {
			return nil, ErrUnauthorized
		}
		o.LastUpdateTime = ts
		o.Version++
		return nil, nil
	})
	if err != nil {
		return PriceOracle{}, fmt.Errorf("set last update time: %w", err)
	}

	e.logger.Warn().Int64("last_update_time", ts).Msg("oracle last update time overridden")
	return committed, nil
}

// Deposit converts amount of the base asset into shares at the current rate
// and credits the caller's own ledger. The base transfer into the pool and the
// share mint commit together with the ledger or not at all.
func (e *Engine) Deposit(ctx context.Context, caller uuid.UUID, amount uint64) (DepositReceipt, error) {
	if amount == 0 {
		return DepositReceipt{}, ErrZeroAmount
	}

	now := e.clock.Now()
	receipt := DepositReceipt{Owner: caller, Amount: amount}

	committed, err := e.store.UpdateLedger(ctx, caller, func(l *DepositLedger) (*Change, error) {
		oracle, err := e.store.GetOracle(ctx)
		if err != nil {
			return nil, err
		}

		shares, err := fpmath.SharesForAmount(amount, oracle.Rate)
		if err != nil {
			return nil, err
		}
		deposited, err := fpmath.CheckedAdd(l.DepositedAmount, amount)
		if err != nil {
			return nil, err
		}
		balance, err := fpmath.CheckedAdd(l.ShareAmount, shares)
		if err != nil {
			return nil, err
		}

		holder := transfer.Holder(caller)
		batch := transfer.NewBatch("deposit:"+caller.String(), now).
			Transfer(transfer.AssetBase, holder, transfer.Pool(), amount).
			Mint(transfer.AssetShare, holder, shares)

		receipt.Shares = shares
		receipt.Rate = oracle.Rate
		receipt.BatchID = batch.BatchID

		l.DepositedAmount = deposited
		l.ShareAmount = balance
		l.Version++
		return e.transferChange("deposit", batch), nil
	})
	if err != nil {
		return DepositReceipt{}, fmt.Errorf("deposit: %w", err)
	}

	receipt.Ledger = committed
	e.logger.Info().
		Str("owner", caller.String()).
		Uint64("amount", amount).
		Uint64("shares", receipt.Shares).
		Uint64("rate", receipt.Rate).
		Msg("deposit committed")
	return receipt, nil
}

// Withdraw redeems shareAmount shares from owner's ledger for the base asset
// at the current rate. The caller must be the ledger's owner. Shares are
// burned and the base asset leaves the pool as the pool.
func (e *Engine) Withdraw(ctx context.Context, caller, owner uuid.UUID, shareAmount uint64) (WithdrawReceipt, error) {
	now := e.clock.Now()
	receipt := WithdrawReceipt{Owner: owner, Shares: shareAmount}

	committed, err := e.store.UpdateLedger(ctx, owner, func(l *DepositLedger) (*Change, error) {
		if caller != l.Owner {
			return nil, ErrUnauthorized
		}
		if shareAmount == 0 {
			return nil, ErrZeroAmount
		}
		if l.ShareAmount < shareAmount {
			return nil, fmt.Errorf("%w: have %d shares, requested %d", ErrInsufficientFunds, l.ShareAmount, shareAmount)
		}

		oracle, err := e.store.GetOracle(ctx)
		if err != nil {
			return nil, err
		}
		baseAmount, err := fpmath.AmountForShares(shareAmount, oracle.Rate)
		if err != nil {
			return nil, err
		}

		remaining, err := fpmath.CheckedSub(l.ShareAmount, shareAmount)
		if err != nil {
			panic(fmt.Sprintf("FATAL: share balance underflow for %s after sufficiency check: %v", owner, err))
		}

		holder := transfer.Holder(owner)
		batch := transfer.NewBatch("withdraw:"+owner.String(), now).
			Burn(transfer.AssetShare, holder, shareAmount).
			Transfer(transfer.AssetBase, transfer.Pool(), holder, baseAmount)

		receipt.BaseAmount = baseAmount
		receipt.Rate = oracle.Rate
		receipt.BatchID = batch.BatchID

		l.ShareAmount = remaining
		l.Version++
		return e.transferChange("withdraw", batch), nil
	})
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("withdraw: %w", err)
	}

	receipt.Ledger = committed
	e.logger.Info().
		Str("owner", owner.String()).
		Uint64("shares", shareAmount).
		Uint64("base_amount", receipt.BaseAmount).
		Uint64("rate", receipt.Rate).
		Msg("withdrawal committed")
	return receipt, nil
}

// Oracle returns the committed oracle.
func (e *Engine) Oracle(ctx context.Context) (PriceOracle, error) {
	return e.store.GetOracle(ctx)
}

// Ledger returns owner's committed ledger.
func (e *Engine) Ledger(ctx context.Context, owner uuid.UUID) (DepositLedger, error) {
	return e.store.GetLedger(ctx, owner)
}

// transferChange binds batch to a ledger update. The reversing batch only runs
// when the ledger write fails after the batch was applied.
func (e *Engine) transferChange(op string, batch *transfer.Batch) *Change {
	if batch.IsEmpty() {
		return nil
	}
	return &Change{
		Apply: func(ctx context.Context) error {
			if err := e.transfers.Apply(ctx, batch); err != nil {
				e.logger.Warn().Err(err).Str("op", op).Str("batch_id", batch.BatchID.String()).Msg("transfer rejected")
				return &TransferError{Op: op, Err: err}
			}
			return nil
		},
		Revert: func(ctx context.Context) error {
			reversal := batch.Reverse()
			e.logger.Error().
				Str("op", op).
				Str("batch_id", batch.BatchID.String()).
				Str("reversal_id", reversal.BatchID.String()).
				Msg("ledger write failed, reversing transfer")
			return e.transfers.Apply(ctx, reversal)
		},
	}
}

// IsUserError reports whether err is a rejection of the request itself as
// opposed to an infrastructure failure.
func IsUserError(err error) bool {
	var te *TransferError
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrZeroAmount) ||
		errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClockSkew) ||
		errors.Is(err, ErrDuplicateRequest) ||
		errors.As(err, &te)
}
