package memory

import (
	"context"
	"sync"

	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// Store keeps vault records in process memory. The oracle and every ledger
// have their own lock; the ledger index lock is only held to find or insert
// a slot.
type Store struct {
	oracleMu sync.RWMutex
	oracle   *vault.PriceOracle

	indexMu sync.RWMutex
	ledgers map[uuid.UUID]*ledgerSlot
}

type ledgerSlot struct {
	mu     sync.RWMutex
	ledger vault.DepositLedger
}

var _ vault.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		ledgers: make(map[uuid.UUID]*ledgerSlot),
	}
}

func (s *Store) CreateOracle(ctx context.Context, o vault.PriceOracle) error {
	s.oracleMu.Lock()
	defer s.oracleMu.Unlock()

	if s.oracle != nil {
		return vault.ErrAlreadyInitialized
	}
	s.oracle = &o
	return nil
}

func (s *Store) GetOracle(ctx context.Context) (vault.PriceOracle, error) {
	s.oracleMu.RLock()
	defer s.oracleMu.RUnlock()

	if s.oracle == nil {
		return vault.PriceOracle{}, vault.ErrNotFound
	}
	return *s.oracle, nil
}

func (s *Store) UpdateOracle(ctx context.Context, fn vault.OracleMutation) (vault.PriceOracle, error) {
	s.oracleMu.Lock()
	defer s.oracleMu.Unlock()

	if s.oracle == nil {
		return vault.PriceOracle{}, vault.ErrNotFound
	}

	next := *s.oracle
	change, err := fn(&next)
	if err != nil {
		return vault.PriceOracle{}, err
	}
	if err := change.Run(ctx, func() error {
		*s.oracle = next
		return nil
	}); err != nil {
		return vault.PriceOracle{}, err
	}
	return next, nil
}

func (s *Store) CreateLedger(ctx context.Context, l vault.DepositLedger) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if _, exists := s.ledgers[l.Owner]; exists {
		return vault.ErrAlreadyInitialized
	}
	s.ledgers[l.Owner] = &ledgerSlot{ledger: l}
	return nil
}

func (s *Store) GetLedger(ctx context.Context, owner uuid.UUID) (vault.DepositLedger, error) {
	slot, ok := s.slot(owner)
	if !ok {
		return vault.DepositLedger{}, vault.ErrNotFound
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.ledger, nil
}

func (s *Store) UpdateLedger(ctx context.Context, owner uuid.UUID, fn vault.LedgerMutation) (vault.DepositLedger, error) {
	slot, ok := s.slot(owner)
	if !ok {
		return vault.DepositLedger{}, vault.ErrNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.ledger
	change, err := fn(&next)
	if err != nil {
		return vault.DepositLedger{}, err
	}
	if err := change.Run(ctx, func() error {
		slot.ledger = next
		return nil
	}); err != nil {
		return vault.DepositLedger{}, err
	}
	return next, nil
}

// Ledgers returns a copy of every ledger.
func (s *Store) Ledgers() []vault.DepositLedger {
	s.indexMu.RLock()
	slots := make([]*ledgerSlot, 0, len(s.ledgers))
	for _, slot := range s.ledgers {
		slots = append(slots, slot)
	}
	s.indexMu.RUnlock()

	out := make([]vault.DepositLedger, 0, len(slots))
	for _, slot := range slots {
		slot.mu.RLock()
		out = append(out, slot.ledger)
		slot.mu.RUnlock()
	}
	return out
}

func (s *Store) slot(owner uuid.UUID) (*ledgerSlot, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	slot, ok := s.ledgers[owner]
	return slot, ok
}
