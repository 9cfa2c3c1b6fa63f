package transfer

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeTransfer JournalType = iota
	JournalTypeMint
	JournalTypeBurn
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries applied together
	EventRef      string      // Reference of the operation that produced it
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being moved
	Amount        uint64      // Always positive
	JournalType   JournalType // Entry type
	Timestamp     int64       // Unix seconds
}

// Batch is a set of journal entries applied all-or-nothing.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Timestamp int64
	Journals  []Journal
}

// NewBatch starts an empty batch. Legs are appended with Transfer, Mint and
// Burn; zero-amount legs are dropped.
func NewBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Timestamp: timestamp,
	}
}

// Transfer moves amount of asset from one party to another.
func (b *Batch) Transfer(asset AssetID, from, to Party, amount uint64) *Batch {
	return b.add(JournalTypeTransfer, asset, to.Account(asset), from.Account(asset), amount)
}

// Mint credits newly issued units of asset to a party.
func (b *Batch) Mint(asset AssetID, to Party, amount uint64) *Batch {
	return b.add(JournalTypeMint, asset, to.Account(asset), NewIssuanceAccountKey(asset), amount)
}

// Burn destroys units of asset held by a party.
func (b *Batch) Burn(asset AssetID, from Party, amount uint64) *Batch {
	return b.add(JournalTypeBurn, asset, NewIssuanceAccountKey(asset), from.Account(asset), amount)
}

func (b *Batch) add(jt JournalType, asset AssetID, debit, credit AccountKey, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
	return b
}

// Reverse returns a new batch that undoes b: legs run in reverse order with
// debit and credit swapped, so a mint becomes a burn and the other way round.
func (b *Batch) Reverse() *Batch {
	r := NewBatch("reverse:"+b.EventRef, b.Timestamp)
	for i := len(b.Journals) - 1; i >= 0; i-- {
		j := b.Journals[i]
		jt := j.JournalType
		switch jt {
		case JournalTypeMint:
			jt = JournalTypeBurn
		case JournalTypeBurn:
			jt = JournalTypeMint
		}
		r.add(jt, j.AssetID, j.CreditAccount, j.DebitAccount, j.Amount)
	}
	return r
}

// IsEmpty reports whether the batch carries no legs.
func (b *Batch) IsEmpty() bool {
	return len(b.Journals) == 0
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from the credit account to the
// debit account, so every entry is balanced on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == 0 {
			return fmt.Errorf("journal %s has zero amount", j.JournalID)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s mixes assets", j.JournalID)
		}
	}

	return nil
}
