package transfer

import (
	"fmt"

	fpmath "VaultLedger/internal/math"
)

// InvariantValidator checks book invariants
type InvariantValidator struct {
	book *Book
}

func NewInvariantValidator(book *Book) *InvariantValidator {
	return &InvariantValidator{
		book: book,
	}
}

// ValidateBatch verifies a batch is well-formed before it is applied.
func (v *InvariantValidator) ValidateBatch(batch *Batch) error {
	return batch.Validate()
}

// ValidateSupply verifies that, per asset, the issued supply equals the sum
// of all holder and pool balances.
func (v *InvariantValidator) ValidateSupply() error {
	v.book.mu.RLock()
	defer v.book.mu.RUnlock()

	totals := make(map[AssetID]uint64)
	for key, balance := range v.book.balances {
		sum, err := fpmath.CheckedAdd(totals[key.AssetID], balance)
		if err != nil {
			return fmt.Errorf("sum of %s balances overflows", key.AssetID)
		}
		totals[key.AssetID] = sum
	}

	for assetID, supply := range v.book.supply {
		if totals[assetID] != supply {
			return fmt.Errorf("supply of %s is %d but balances sum to %d", assetID, supply, totals[assetID])
		}
	}
	for assetID, total := range totals {
		if _, ok := v.book.supply[assetID]; !ok && total != 0 {
			return fmt.Errorf("balances of %s sum to %d with no issued supply", assetID, total)
		}
	}

	return nil
}

// ValidatePoolCovers checks that the pool holds at least required units of
// an asset.
func (v *InvariantValidator) ValidatePoolCovers(asset AssetID, required uint64) error {
	held := v.book.Balance(Pool(), asset)
	if held < required {
		return fmt.Errorf("pool holds %d %s, need %d", held, asset, required)
	}
	return nil
}
