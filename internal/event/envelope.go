package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOracleInitialized
	EventTypeLedgerInitialized
	EventTypePriceUpdated
	EventTypeDeposited
	EventTypeWithdrawn
	EventTypeLastUpdateOverridden
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Caller-supplied dedup key; empty when the request carried none
	IdempotencyKey string

	EventType EventType

	// Ledger owner (nil for oracle events)
	Owner *uuid.UUID

	// Clock reading of the operation that produced the event
	Timestamp time.Time

	// JSON-encoded event payload
	Payload []byte

	// SHA-256 chain hash after this event
	StateHash [32]byte

	// Previous event's chain hash
	PrevHash [32]byte
}

// Event is the interface all event payloads implement
type Event interface {
	// IdempotencyKey returns the caller's dedup key, possibly empty
	IdempotencyKey() string

	EventType() EventType

	// Owner returns the ledger owner (nil for oracle events)
	Owner() *uuid.UUID

	// RecordVersion is the version of the record after the change
	RecordVersion() uint64
}

var eventTypeNames = map[EventType]string{
	EventTypeOracleInitialized:    "OracleInitialized",
	EventTypeLedgerInitialized:    "LedgerInitialized",
	EventTypePriceUpdated:         "PriceUpdated",
	EventTypeDeposited:            "Deposited",
	EventTypeWithdrawn:            "Withdrawn",
	EventTypeLastUpdateOverridden: "LastUpdateOverridden",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// Subject returns the lower-case token used in NATS subjects.
func (et EventType) Subject() string {
	return strings.ToLower(et.String())
}

// ParseEventType maps a name produced by String back to its EventType.
func ParseEventType(name string) EventType {
	for et, n := range eventTypeNames {
		if strings.EqualFold(n, name) {
			return et
		}
	}
	return EventTypeUnknown
}
