package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// LegError identifies the journal of a batch that could not be applied.
type LegError struct {
	Journal Journal
	Err     error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("%s %d %s: %v", e.Journal.JournalType, e.Journal.Amount, e.Journal.AssetID, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// Book is an in-memory asset-transfer service. It keeps uint64 balances per
// account and tracks each asset's outstanding supply against the issuance
// boundary. Batches apply atomically under a single lock.
type Book struct {
	mu       sync.RWMutex
	balances map[AccountKey]uint64
	supply   map[AssetID]uint64
	applied  uint64
}

func NewBook() *Book {
	return &Book{
		balances: make(map[AccountKey]uint64),
		supply:   make(map[AssetID]uint64),
	}
}

// Apply validates the batch and applies every journal, or none of them.
func (bk *Book) Apply(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	bk.mu.Lock()
	defer bk.mu.Unlock()

	staged := make(map[AccountKey]uint64, len(batch.Journals)*2)
	stagedSupply := make(map[AssetID]uint64, 2)

	balance := func(k AccountKey) uint64 {
		if v, ok := staged[k]; ok {
			return v
		}
		return bk.balances[k]
	}
	supply := func(a AssetID) uint64 {
		if v, ok := stagedSupply[a]; ok {
			return v
		}
		return bk.supply[a]
	}

	for _, j := range batch.Journals {
		// Credit side first: a holder cannot spend what this leg brings in.
		if j.CreditAccount.Scope == AccountScopeExternal {
			next, err := fpmath.CheckedAdd(supply(j.AssetID), j.Amount)
			if err != nil {
				return &LegError{Journal: j, Err: ErrBalanceOverflow}
			}
			stagedSupply[j.AssetID] = next
		} else {
			next, err := fpmath.CheckedSub(balance(j.CreditAccount), j.Amount)
			if err != nil {
				return &LegError{Journal: j, Err: ErrInsufficientBalance}
			}
			staged[j.CreditAccount] = next
		}

		if j.DebitAccount.Scope == AccountScopeExternal {
			next, err := fpmath.CheckedSub(supply(j.AssetID), j.Amount)
			if err != nil {
				return &LegError{Journal: j, Err: ErrInsufficientBalance}
			}
			stagedSupply[j.AssetID] = next
		} else {
			next, err := fpmath.CheckedAdd(balance(j.DebitAccount), j.Amount)
			if err != nil {
				return &LegError{Journal: j, Err: ErrBalanceOverflow}
			}
			staged[j.DebitAccount] = next
		}
	}

	for k, v := range staged {
		if v == 0 {
			delete(bk.balances, k)
			continue
		}
		bk.balances[k] = v
	}
	for a, v := range stagedSupply {
		bk.supply[a] = v
	}
	bk.applied++

	return nil
}

// Transfer moves amount of asset between two parties.
func (bk *Book) Transfer(ctx context.Context, asset AssetID, from, to Party, amount uint64) error {
	return bk.single(ctx, NewBatch("transfer:"+uuid.NewString(), 0).Transfer(asset, from, to, amount))
}

// Mint issues amount of asset to a party.
func (bk *Book) Mint(ctx context.Context, asset AssetID, to Party, amount uint64) error {
	return bk.single(ctx, NewBatch("mint:"+uuid.NewString(), 0).Mint(asset, to, amount))
}

// Burn destroys amount of asset held by a party.
func (bk *Book) Burn(ctx context.Context, asset AssetID, from Party, amount uint64) error {
	return bk.single(ctx, NewBatch("burn:"+uuid.NewString(), 0).Burn(asset, from, amount))
}

func (bk *Book) single(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		return nil
	}
	return bk.Apply(ctx, batch)
}

// Balance returns a party's balance of an asset.
func (bk *Book) Balance(p Party, asset AssetID) uint64 {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	return bk.balances[p.Account(asset)]
}

// Supply returns the outstanding issued amount of an asset.
func (bk *Book) Supply(asset AssetID) uint64 {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	return bk.supply[asset]
}

// AppliedBatches returns how many batches have been committed.
func (bk *Book) AppliedBatches() uint64 {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	return bk.applied
}

// Snapshot returns a copy of all non-zero balances.
func (bk *Book) Snapshot() map[AccountKey]uint64 {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	snapshot := make(map[AccountKey]uint64, len(bk.balances))
	for k, v := range bk.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Seed mints opening balances, e.g. from configuration.
func (bk *Book) Seed(ctx context.Context, seeds []SeedBalance) error {
	for _, s := range seeds {
		if err := bk.Mint(ctx, s.Asset, s.Party, s.Amount); err != nil {
			return fmt.Errorf("seed %s %s: %w", s.Party, s.Asset, err)
		}
	}
	return nil
}

// SeedBalance is an opening balance.
type SeedBalance struct {
	Party  Party
	Asset  AssetID
	Amount uint64
}
