package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OracleResponse represents the price oracle for API queries. Decimal
// fields render the scaled integers, e.g. rate 1_050_000 as "1.05".
type OracleResponse struct {
	Administrator  uuid.UUID       `json:"administrator"`
	Rate           uint64          `json:"rate"`
	RateDecimal    decimal.Decimal `json:"rate_decimal"`
	LastUpdateTime int64           `json:"last_update_time"`
	// AccruedRate is the rate an UpdatePrice at query time would produce.
	AccruedRate  uint64 `json:"accrued_rate"`
	Version      uint64 `json:"version"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// LedgerResponse represents a deposit ledger for API queries.
type LedgerResponse struct {
	Owner                  uuid.UUID       `json:"owner"`
	DepositedAmount        uint64          `json:"deposited_amount"`
	DepositedAmountDecimal decimal.Decimal `json:"deposited_amount_decimal"`
	ShareAmount            uint64          `json:"share_amount"`
	ShareAmountDecimal     decimal.Decimal `json:"share_amount_decimal"`
	// RedeemableAmount is what withdrawing every share would pay at the
	// committed rate. Derived at query time.
	RedeemableAmount uint64 `json:"redeemable_amount"`
	Version          uint64 `json:"version"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// DepositPreview is the result of a deposit at the committed rate.
type DepositPreview struct {
	Amount uint64 `json:"amount"`
	Shares uint64 `json:"shares"`
	Rate   uint64 `json:"rate"`
}

// WithdrawPreview is the result of a withdrawal at the committed rate.
type WithdrawPreview struct {
	Shares uint64 `json:"shares"`
	Amount uint64 `json:"amount"`
	Rate   uint64 `json:"rate"`
}
