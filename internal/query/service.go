package query

import (
	"context"
	"errors"
	"fmt"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// Reader is the committed-state view the query service reads from.
type Reader interface {
	Oracle(ctx context.Context) (vault.PriceOracle, error)
	Ledger(ctx context.Context, owner uuid.UUID) (vault.DepositLedger, error)
	// Sequence is the sequence the next event will get.
	Sequence() int64
}

// QueryService provides read-only access to vault records. All responses
// include as_of_sequence, the last event sequence emitted before the read.
type QueryService struct {
	reader Reader
	clock  vault.Clock
}

func NewQueryService(reader Reader, clock vault.Clock) *QueryService {
	return &QueryService{reader: reader, clock: clock}
}

// GetOracle returns the committed oracle plus the rate it would accrue to now.
func (qs *QueryService) GetOracle(ctx context.Context) (*OracleResponse, error) {
	asOf := qs.reader.Sequence() - 1
	o, err := qs.reader.Oracle(ctx)
	if err != nil {
		return nil, err
	}

	accrued := o.Rate
	if now := qs.clock.Now(); now > o.LastUpdateTime {
		accrued, err = fpmath.GrowRate(o.Rate, uint64(now-o.LastUpdateTime))
		if errors.Is(err, fpmath.ErrOverflow) {
			// UpdatePrice would fail with Overflow; report the committed rate.
			accrued = o.Rate
		} else if err != nil {
			return nil, err
		}
	}

	return &OracleResponse{
		Administrator:  o.Administrator,
		Rate:           o.Rate,
		RateDecimal:    fpmath.RateConfig.ToDecimal(o.Rate),
		LastUpdateTime: o.LastUpdateTime,
		AccruedRate:    accrued,
		Version:        o.Version,
		AsOfSequence:   asOf,
	}, nil
}

// GetLedger returns an owner's ledger. RedeemableAmount saturates at the
// uint64 maximum when the conversion would overflow.
func (qs *QueryService) GetLedger(ctx context.Context, owner uuid.UUID) (*LedgerResponse, error) {
	asOf := qs.reader.Sequence() - 1
	l, err := qs.reader.Ledger(ctx, owner)
	if err != nil {
		return nil, err
	}

	var redeemable uint64
	if o, err := qs.reader.Oracle(ctx); err == nil {
		redeemable, err = fpmath.AmountForShares(l.ShareAmount, o.Rate)
		if errors.Is(err, fpmath.ErrOverflow) {
			redeemable = ^uint64(0)
		} else if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, vault.ErrNotFound) {
		return nil, err
	}

	return &LedgerResponse{
		Owner:                  l.Owner,
		DepositedAmount:        l.DepositedAmount,
		DepositedAmountDecimal: fpmath.AmountConfig.ToDecimal(l.DepositedAmount),
		ShareAmount:            l.ShareAmount,
		ShareAmountDecimal:     fpmath.AmountConfig.ToDecimal(l.ShareAmount),
		RedeemableAmount:       redeemable,
		Version:                l.Version,
		AsOfSequence:           asOf,
	}, nil
}

// PreviewDeposit returns the shares a deposit of amount would mint now.
// It applies the same conversion as Deposit, including ErrZeroAmount and
// ErrOverflow.
func (qs *QueryService) PreviewDeposit(ctx context.Context, amount uint64) (*DepositPreview, error) {
	if amount == 0 {
		return nil, vault.ErrZeroAmount
	}
	o, err := qs.reader.Oracle(ctx)
	if err != nil {
		return nil, err
	}
	shares, err := fpmath.SharesForAmount(amount, o.Rate)
	if err != nil {
		return nil, fmt.Errorf("preview deposit: %w", err)
	}
	return &DepositPreview{Amount: amount, Shares: shares, Rate: o.Rate}, nil
}

// PreviewWithdraw returns the base amount burning shares would pay now.
func (qs *QueryService) PreviewWithdraw(ctx context.Context, shares uint64) (*WithdrawPreview, error) {
	if shares == 0 {
		return nil, vault.ErrZeroAmount
	}
	o, err := qs.reader.Oracle(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := fpmath.AmountForShares(shares, o.Rate)
	if err != nil {
		return nil, fmt.Errorf("preview withdraw: %w", err)
	}
	return &WithdrawPreview{Shares: shares, Amount: amount, Rate: o.Rate}, nil
}
