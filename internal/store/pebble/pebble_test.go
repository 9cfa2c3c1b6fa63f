package pebble_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"VaultLedger/internal/store/pebble"
	"VaultLedger/internal/vault"

	cpebble "github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*pebble.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := pebble.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestPebble_OracleRoundTrip(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	_, err := s.GetOracle(ctx)
	require.ErrorIs(t, err, vault.ErrNotFound)

	o := vault.PriceOracle{Administrator: uuid.New(), Rate: 1_000_000, LastUpdateTime: 1_700_000_000, Version: 1}
	require.NoError(t, s.CreateOracle(ctx, o))
	require.ErrorIs(t, s.CreateOracle(ctx, o), vault.ErrAlreadyInitialized)

	got, err := s.GetOracle(ctx)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestPebble_SurvivesReopen(t *testing.T) {
	s, dir := openStore(t)
	ctx := context.Background()
	owner := uuid.New()

	require.NoError(t, s.CreateLedger(ctx, vault.DepositLedger{Owner: owner, Version: 1}))
	_, err := s.UpdateLedger(ctx, owner, func(l *vault.DepositLedger) (*vault.Change, error) {
		l.DepositedAmount = 18_446_744_073_709_551_615
		l.ShareAmount = 7
		l.Version++
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := pebble.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetLedger(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(18_446_744_073_709_551_615), got.DepositedAmount)
	assert.Equal(t, uint64(7), got.ShareAmount)
	assert.Equal(t, uint64(2), got.Version)
}

func TestPebble_FailedEffectKeepsOldValue(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, s.CreateLedger(ctx, vault.DepositLedger{Owner: owner, Version: 1}))

	boom := errors.New("transfer down")
	_, err := s.UpdateLedger(ctx, owner, func(l *vault.DepositLedger) (*vault.Change, error) {
		l.ShareAmount = 100
		return &vault.Change{Apply: func(context.Context) error { return boom }}, nil
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetLedger(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, got.ShareAmount)
}

func TestPebble_FailedWriteRevertsChange(t *testing.T) {
	s, dir := openStore(t)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, s.CreateLedger(ctx, vault.DepositLedger{Owner: owner, Version: 1}))
	require.NoError(t, s.Close())

	// Reads succeed on a read-only database and the synced write fails.
	db, err := cpebble.Open(dir, &cpebble.Options{ReadOnly: true})
	require.NoError(t, err)
	ro := pebble.NewStore(db)
	defer ro.Close()

	var applied, reverted int
	_, err = ro.UpdateLedger(ctx, owner, func(l *vault.DepositLedger) (*vault.Change, error) {
		l.ShareAmount = 100
		return &vault.Change{
			Apply:  func(context.Context) error { applied++; return nil },
			Revert: func(context.Context) error { reverted++; return nil },
		}, nil
	})
	require.ErrorIs(t, err, cpebble.ErrReadOnly)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, reverted)

	got, err := ro.GetLedger(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, got.ShareAmount)
}

func TestPebble_ConcurrentUpdates(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	owners := []uuid.UUID{uuid.New(), uuid.New()}
	for _, o := range owners {
		require.NoError(t, s.CreateLedger(ctx, vault.DepositLedger{Owner: o}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		for _, o := range owners {
			wg.Add(1)
			go func(owner uuid.UUID) {
				defer wg.Done()
				_, err := s.UpdateLedger(ctx, owner, func(l *vault.DepositLedger) (*vault.Change, error) {
					l.ShareAmount++
					return nil, nil
				})
				assert.NoError(t, err)
			}(o)
		}
	}
	wg.Wait()

	all, err := s.Ledgers()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, l := range all {
		assert.Equal(t, uint64(30), l.ShareAmount)
	}
}

func TestPebble_Closed(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetLedger(context.Background(), uuid.New())
	require.ErrorIs(t, err, pebble.ErrDBClosed)
}

func TestPebble_CloseWhileReading(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, s.CreateLedger(ctx, vault.DepositLedger{Owner: owner}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := s.GetLedger(ctx, owner)
				if err != nil {
					assert.ErrorIs(t, err, pebble.ErrDBClosed)
					return
				}
			}
		}()
	}
	require.NoError(t, s.Close())
	wg.Wait()

	_, err := s.Ledgers()
	require.ErrorIs(t, err, pebble.ErrDBClosed)
}
