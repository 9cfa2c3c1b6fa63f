package vault

import (
	"github.com/google/uuid"
)

// PriceOracle is the single global record holding the conversion rate.
// Rate is scaled by fpmath.RateScale and never drops below it.
type PriceOracle struct {
	Administrator  uuid.UUID `json:"administrator"`
	Rate           uint64    `json:"rate"`
	LastUpdateTime int64     `json:"last_update_time"` // unix seconds
	Version        uint64    `json:"version"`
}

// DepositLedger is the per-owner record. DepositedAmount is a lifetime total
// and is never decremented; ShareAmount is the live share balance.
type DepositLedger struct {
	Owner           uuid.UUID `json:"owner"`
	DepositedAmount uint64    `json:"deposited_amount"`
	ShareAmount     uint64    `json:"share_amount"`
	Version         uint64    `json:"version"`
}

// PriceUpdate describes one committed UpdatePrice call.
type PriceUpdate struct {
	PreviousRate   uint64
	Rate           uint64
	Elapsed        uint64
	LastUpdateTime int64
	Version        uint64
}

// DepositReceipt describes one committed deposit.
type DepositReceipt struct {
	Owner   uuid.UUID
	Amount  uint64
	Shares  uint64
	Rate    uint64
	Ledger  DepositLedger
	BatchID uuid.UUID
}

// WithdrawReceipt describes one committed withdrawal.
type WithdrawReceipt struct {
	Owner      uuid.UUID
	Shares     uint64
	BaseAmount uint64
	Rate       uint64
	Ledger     DepositLedger
	BatchID    uuid.UUID
}
