package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type OracleInitialized struct {
	Key            string    `json:"idempotency_key,omitempty"`
	Administrator  uuid.UUID `json:"administrator"`
	Rate           uint64    `json:"rate"`
	LastUpdateTime int64     `json:"last_update_time"`
	Version        uint64    `json:"version"`
}

func (e *OracleInitialized) IdempotencyKey() string { return e.Key }
func (e *OracleInitialized) EventType() EventType   { return EventTypeOracleInitialized }
func (e *OracleInitialized) Owner() *uuid.UUID      { return nil }
func (e *OracleInitialized) RecordVersion() uint64  { return e.Version }

type LedgerInitialized struct {
	Key     string    `json:"idempotency_key,omitempty"`
	Holder  uuid.UUID `json:"owner"`
	Version uint64    `json:"version"`
}

func (e *LedgerInitialized) IdempotencyKey() string { return e.Key }
func (e *LedgerInitialized) EventType() EventType   { return EventTypeLedgerInitialized }
func (e *LedgerInitialized) Owner() *uuid.UUID      { return &e.Holder }
func (e *LedgerInitialized) RecordVersion() uint64  { return e.Version }

type PriceUpdated struct {
	Key            string `json:"idempotency_key,omitempty"`
	PreviousRate   uint64 `json:"previous_rate"`
	Rate           uint64 `json:"rate"`
	Elapsed        uint64 `json:"elapsed"`
	LastUpdateTime int64  `json:"last_update_time"`
	Version        uint64 `json:"version"`
}

func (e *PriceUpdated) IdempotencyKey() string { return e.Key }
func (e *PriceUpdated) EventType() EventType   { return EventTypePriceUpdated }
func (e *PriceUpdated) Owner() *uuid.UUID      { return nil }
func (e *PriceUpdated) RecordVersion() uint64  { return e.Version }

type Deposited struct {
	Key             string    `json:"idempotency_key,omitempty"`
	Holder          uuid.UUID `json:"owner"`
	Amount          uint64    `json:"amount"`
	Shares          uint64    `json:"shares"`
	Rate            uint64    `json:"rate"`
	DepositedAmount uint64    `json:"deposited_amount"`
	ShareAmount     uint64    `json:"share_amount"`
	BatchID         uuid.UUID `json:"batch_id"`
	Version         uint64    `json:"version"`
}

func (e *Deposited) IdempotencyKey() string { return e.Key }
func (e *Deposited) EventType() EventType   { return EventTypeDeposited }
func (e *Deposited) Owner() *uuid.UUID      { return &e.Holder }
func (e *Deposited) RecordVersion() uint64  { return e.Version }

type Withdrawn struct {
	Key         string    `json:"idempotency_key,omitempty"`
	Holder      uuid.UUID `json:"owner"`
	Shares      uint64    `json:"shares"`
	BaseAmount  uint64    `json:"base_amount"`
	Rate        uint64    `json:"rate"`
	ShareAmount uint64    `json:"share_amount"`
	BatchID     uuid.UUID `json:"batch_id"`
	Version     uint64    `json:"version"`
}

func (e *Withdrawn) IdempotencyKey() string { return e.Key }
func (e *Withdrawn) EventType() EventType   { return EventTypeWithdrawn }
func (e *Withdrawn) Owner() *uuid.UUID      { return &e.Holder }
func (e *Withdrawn) RecordVersion() uint64  { return e.Version }

type LastUpdateOverridden struct {
	Key            string `json:"idempotency_key,omitempty"`
	LastUpdateTime int64  `json:"last_update_time"`
	Version        uint64 `json:"version"`
}

func (e *LastUpdateOverridden) IdempotencyKey() string { return e.Key }
func (e *LastUpdateOverridden) EventType() EventType   { return EventTypeLastUpdateOverridden }
func (e *LastUpdateOverridden) Owner() *uuid.UUID      { return nil }
func (e *LastUpdateOverridden) RecordVersion() uint64  { return e.Version }

// Encode returns the canonical payload bytes of evt. Field order is fixed by
// the struct definitions, so equal events always encode identically.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode parses a payload produced by Encode.
func Decode(et EventType, payload []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeOracleInitialized:
		evt = &OracleInitialized{}
	case EventTypeLedgerInitialized:
		evt = &LedgerInitialized{}
	case EventTypePriceUpdated:
		evt = &PriceUpdated{}
	case EventTypeDeposited:
		evt = &Deposited{}
	case EventTypeWithdrawn:
		evt = &Withdrawn{}
	case EventTypeLastUpdateOverridden:
		evt = &LastUpdateOverridden{}
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}
