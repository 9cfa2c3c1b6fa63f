package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"VaultLedger/internal/vault"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

var ErrDBClosed = errors.New("database is closed")

var (
	oracleKey    = []byte("oracle")
	ledgerPrefix = []byte("ledger/")
)

// Store keeps vault records in an embedded Pebble database as JSON values.
// Pebble has no row locks, so each key gets its own mutex and every write is
// synced before the update returns.
type Store struct {
	// mu guards db; Close takes it exclusively.
	mu sync.RWMutex
	db *pebble.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ vault.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return NewStore(db), nil
}

func NewStore(db *pebble.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) CreateOracle(ctx context.Context, o vault.PriceOracle) error {
	return s.create(oracleKey, o)
}

func (s *Store) GetOracle(ctx context.Context) (vault.PriceOracle, error) {
	var o vault.PriceOracle
	err := s.read(oracleKey, &o)
	return o, err
}

func (s *Store) UpdateOracle(ctx context.Context, fn vault.OracleMutation) (vault.PriceOracle, error) {
	unlock := s.lock(oracleKey)
	defer unlock()

	var next vault.PriceOracle
	if err := s.read(oracleKey, &next); err != nil {
		return vault.PriceOracle{}, err
	}
	change, err := fn(&next)
	if err != nil {
		return vault.PriceOracle{}, err
	}
	if err := s.commit(ctx, oracleKey, next, change); err != nil {
		return vault.PriceOracle{}, err
	}
	return next, nil
}

func (s *Store) CreateLedger(ctx context.Context, l vault.DepositLedger) error {
	return s.create(ledgerKey(l.Owner), l)
}

func (s *Store) GetLedger(ctx context.Context, owner uuid.UUID) (vault.DepositLedger, error) {
	var l vault.DepositLedger
	err := s.read(ledgerKey(owner), &l)
	return l, err
}

func (s *Store) UpdateLedger(ctx context.Context, owner uuid.UUID, fn vault.LedgerMutation) (vault.DepositLedger, error) {
	key := ledgerKey(owner)
	unlock := s.lock(key)
	defer unlock()

	var next vault.DepositLedger
	if err := s.read(key, &next); err != nil {
		return vault.DepositLedger{}, err
	}
	change, err := fn(&next)
	if err != nil {
		return vault.DepositLedger{}, err
	}
	if err := s.commit(ctx, key, next, change); err != nil {
		return vault.DepositLedger{}, err
	}
	return next, nil
}

// Ledgers returns every stored ledger in key order.
func (s *Store) Ledgers() ([]vault.DepositLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrDBClosed
	}

	upper := append([]byte(nil), ledgerPrefix...)
	upper[len(upper)-1]++
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: ledgerPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []vault.DepositLedger
	for iter.First(); iter.Valid(); iter.Next() {
		var l vault.DepositLedger
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, l)
	}
	return out, iter.Error()
}

func (s *Store) create(key []byte, record interface{}) error {
	unlock := s.lock(key)
	defer unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrDBClosed
	}
	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return vault.ErrAlreadyInitialized
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Set(key, value, pebble.Sync)
}

// commit runs change around the synced write of value. The key lock is held
// by the caller, so no reader of the record sees value before the change was
// applied.
func (s *Store) commit(ctx context.Context, key []byte, record interface{}, change *vault.Change) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrDBClosed
	}
	return change.Run(ctx, func() error {
		if err := s.db.Set(key, value, pebble.Sync); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) read(key []byte, dst interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrDBClosed
	}

	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return vault.ErrNotFound
		}
		return err
	}
	defer closer.Close()

	if err := json.Unmarshal(val, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) lock(key []byte) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[string(key)]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[string(key)] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func ledgerKey(owner uuid.UUID) []byte {
	return append(append([]byte(nil), ledgerPrefix...), owner.String()...)
}
